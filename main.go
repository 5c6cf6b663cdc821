/*
Copyright 2025 Markus Papenbrock
*/
package main

import "github.com/mpapenbr/weblynx-service-go/cmd"

func main() {
	cmd.Execute()
}
