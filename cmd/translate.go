/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/translator"
	"github.com/valpere/legtrans/internal/validator"
)

var (
	inputFile  string
	outputFile string
	sourceLang string
	targetLang string
	noCache    bool
)

var translateCmd = &cobra.Command{
	Use:   "translate [text]",
	Short: "Translate a text once",
	Long: `Connects to the configured backend, translates the text given as an
argument or read from --input, and prints the result or writes it to --output.

The translation memory answers repeated texts without calling the backend;
use --no-cache to bypass it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}

		pair, err := language.ParsePair(sourceLang, targetLang)
		if err != nil {
			return err
		}

		guard := cfg.Guard()
		if !guard.Accept(text) {
			return fmt.Errorf("text is longer than %d characters", guard.MaxLength)
		}
		if !guard.Translatable(text) {
			return fmt.Errorf("text is shorter than %d characters", guard.MinLength)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if noCache {
			cfg.Store.Enabled = false
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		conn, err := buildConnector(cfg, db, logger)
		if err != nil {
			return err
		}

		connectCtx := ctx
		if cfg.Client.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, cfg.Client.ConnectTimeout)
			defer cancel()
		}
		h, err := conn.Connect(connectCtx)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", conn.Name(), err)
		}
		if closer, ok := h.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		predictCtx := ctx
		if cfg.Client.PredictTimeout > 0 {
			var cancel context.CancelFunc
			predictCtx, cancel = context.WithTimeout(ctx, cfg.Client.PredictTimeout)
			defer cancel()
		}
		res, err := h.Predict(predictCtx, translator.TranslateRequest{
			Text:       text,
			SourceLang: pair.From,
			TargetLang: pair.To,
		})
		if err != nil {
			return err
		}

		if res.Cached {
			fmt.Fprintf(os.Stderr, "Using cached translation\n")
		}
		logger.Debug("translated", "backend", res.ServiceName, "pair", pair.String(), "latency", res.Latency, "cached", res.Cached)

		if outputFile == "" {
			fmt.Println(res.TranslatedText)
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(outputFile, []byte(res.TranslatedText), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Successfully translated %s to %s\n", pair.From, pair.To)
		return nil
	},
}

func readInput(args []string) (string, error) {
	if len(args) == 1 {
		if inputFile != "" {
			return "", fmt.Errorf("give either a text argument or --input, not both")
		}
		return args[0], nil
	}
	if inputFile == "" {
		return "", fmt.Errorf("nothing to translate: give a text argument or --input")
	}
	if inputFile == outputFile {
		return "", fmt.Errorf("input file and output file cannot be the same")
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	text := string(data)
	if validator.Empty(text) {
		return "", fmt.Errorf("input file %s is empty", inputFile)
	}
	return strings.TrimRight(text, "\n"), nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file to translate")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default stdout)")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", language.DefaultFrom, "Source language: fr or ar")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", language.DefaultTo, "Target language: fr or ar")
	translateCmd.Flags().String("backend", "gradio", "Translation backend: gradio, google, mymemory")
	translateCmd.Flags().String("space", "", "Hugging Face Space (owner/name or URL)")
	translateCmd.Flags().String("endpoint", "", "Gradio endpoint name")
	translateCmd.Flags().StringP("credentials", "c", "", "Path to Google Cloud credentials")
	translateCmd.Flags().String("mymemory-email", "", "MyMemory email (for higher limits)")
	translateCmd.Flags().Duration("connect-timeout", 0, "Bound on the connect step")
	translateCmd.Flags().Duration("predict-timeout", 0, "Bound on the translation call")
	translateCmd.Flags().String("db", "legtrans.db", "Database path for translation memory")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable translation memory cache")
}
