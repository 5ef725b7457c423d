// Command examprepctl is the operator CLI for the practice API: schema
// migrations, local session tokens and free trial / retake administration.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
