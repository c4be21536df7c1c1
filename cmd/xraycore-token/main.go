// Command xraycore-token is the small operator-facing CLI used to
// provision the Event Gateway's API key and mint subscription tokens
// against a running xraycore process, talking to it over plain HTTP.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"xraycore/internal/authguard"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "hash-key":
		hashKeyCmd(os.Args[2:])
	case "mint-token":
		mintTokenCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: xraycore-token <hash-key|mint-token> [flags]")
}

func hashKeyCmd(args []string) {
	fs := flag.NewFlagSet("hash-key", flag.ExitOnError)
	key := fs.String("key", "", "plaintext operator API key to hash")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "hash-key: -key is required")
		os.Exit(1)
	}

	hash, err := authguard.HashAPIKey(*key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash-key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func mintTokenCmd(args []string) {
	fs := flag.NewFlagSet("mint-token", flag.ExitOnError)
	host := fs.String("host", "http://localhost:8080", "xraycore server base URL")
	key := fs.String("key", "", "plaintext operator API key")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "mint-token: -key is required")
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *host+"/token", bytes.NewReader(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint-token: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Api-Key", *key)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint-token: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "mint-token: server returned %s: %s\n", resp.Status, body)
		os.Exit(1)
	}
	fmt.Println(string(body))
}
