// Command ufimport loads the institution, metadata and enrollment
// spreadsheets into the university database.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"

	_ "github.com/petermich29/uf-database/internal/core/tables" // Register all stages
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	Execute()
}
