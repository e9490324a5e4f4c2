package main

import (
	"fmt"
	"os"
)

// @title           Reservation Engine API
// @version         1.0
// @description     座席・予約枠の保留と予約確定を扱うAPI
// @BasePath        /api/v1
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
