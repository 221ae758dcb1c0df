package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/auth"
)

func main() {
	// CLI flags
	username := flag.String("user", "", "Login name to print a LOGINS entry for")
	password := flag.String("password", "", "Password to hash (random when empty)")
	length := flag.Int("length", 16, "Length of a generated password")
	flag.Parse()

	if *password == "" {
		p, err := auth.GeneratePassword(*length)
		if err != nil {
			log.Fatalf("Failed to generate password: %v", err)
		}
		*password = p
		fmt.Printf("Password: %s\n", p)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Printf("Hash:     %s\n", hash)
	if *username != "" {
		fmt.Printf("LOGINS entry: %s:%s\n", *username, hash)
	}
}
