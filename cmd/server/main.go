package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.4.0"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cobra.CheckErr(newCmd().Execute())
}
