// Command slotctl is an operator CLI for the appointment and notification services:
// mint development tokens, drive reschedule negotiations and inspect the calendar.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
