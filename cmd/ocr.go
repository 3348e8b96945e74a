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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/legtrans/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Extract text from an image through the OCR backend",
	Long: `Reads an image file, sends it to the OCR backend the same way the
/api/translate-image route does, and prints the extracted text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := ocr.EncodeFile(args[0])
		if err != nil {
			return err
		}

		client := ocr.NewClient(cfg.OCR.URL, cfg.OCR.Timeout, ocr.WithLogger(logger))
		fmt.Fprintf(os.Stderr, "Extracting text from %s...\n", args[0])
		text, err := client.Extract(cmd.Context(), image)
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Fprintln(os.Stderr, "No text found.")
			return nil
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().String("ocr-url", "", "OCR backend URL")
	ocrCmd.Flags().Duration("ocr-timeout", 0, "Bound on the OCR call")
}
