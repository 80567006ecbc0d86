package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tessera-data/tessera"
	"github.com/tessera-data/tessera/internal"
	"go.uber.org/zap"
)

func runValidate(args []string) error {
	flags := flag.NewFlagSet("validate", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		zap.S().Info("Usage: tessera-tools validate -query '<text>'")
		zap.S().Info("")
		zap.S().Info("Options:")
		flags.PrintDefaults()
	}

	queryText := flags.String("query", "", "Federated query text to check")
	queryFile := flags.String("query-file", "", "Path to a file containing the query text (overrides -query)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	text := *queryText
	if *queryFile != "" {
		data, err := os.ReadFile(*queryFile)
		if err != nil {
			return fmt.Errorf("read query file: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("either -query or -query-file must be provided")
	}

	return validateQueryText(text)
}

// validateQueryText parses the text and reports the verdict on stdout.
func validateQueryText(text string) error {
	parsed, err := internal.Parse(text)
	if err != nil {
		if engineErr, ok := tessera.AsError(err); ok {
			fmt.Printf("invalid: [%s] %s\n", engineErr.Code, engineErr.Message)
		} else {
			fmt.Printf("invalid: %v\n", err)
		}
		return err
	}

	fmt.Println("valid")
	fmt.Printf("collections: %s\n", strings.Join(parsed.Collections(), ", "))
	fmt.Printf("normalized:  %s\n", parsed.String())
	return nil
}
