// Command ledgerproc turns uploaded general-ledger sessions into verified
// budget results.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
