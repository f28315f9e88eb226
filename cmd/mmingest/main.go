// Command mmingest decomposes documents into content records and indexes
// them into a local SQLite collection.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
