//	@title			FinLink API
//	@version		1.0
//	@description	OAuth-based financial account linking service

//	@contact.name	API Support
//	@contact.url	https://github.com/finlink/finlink

//	@license.name	MIT
//	@license.url	https://github.com/finlink/finlink/blob/main/LICENSE

//	@host		localhost:8080
//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/finlink/finlink/internal/bootstrap"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/version"
)

func main() {
	// Define flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		version.PrintVersion()
		os.Exit(0)
	}

	// Check if command is provided
	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Handle subcommands
	switch args[0] {
	case "server":
		runServer()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("Financial account linking service")
	fmt.Println("\nCommands:")
	fmt.Println("  server    Start the API server")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}

func runServer() {
	cfg := config.Load()

	if err := bootstrap.Run(cfg); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
