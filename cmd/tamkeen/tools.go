package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamkeen-edu/tamkeen/internal/convert/braille"
	"github.com/tamkeen-edu/tamkeen/internal/extract"
	"github.com/tamkeen-edu/tamkeen/internal/model"
	"github.com/tamkeen-edu/tamkeen/internal/quiz"
	"github.com/tamkeen-edu/tamkeen/internal/store"
)

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz [file|-]",
		Short: "Generate a quiz from study text and print it as JSON",
		Long:  "Generate a quiz from study text and print it as JSON.\nThe input may be plain text, a PDF (.pdf) or a Word document (.docx).",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runQuiz,
	}
	f := cmd.Flags()
	f.Int("quiz-max-keywords", quiz.DefaultOptions().MaxKeywords, "Keyword pool cap")
	f.Bool("quiz-shuffle", false, "Shuffle answer options")
	addLogFlags(cmd)
	return cmd
}

func runQuiz(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	text, err := readInput(cmd.Context(), args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return model.E(model.KindEmptyInput, "quiz", nil)
	}
	synth := quiz.NewSynthesizer(quiz.Options{
		MaxKeywords:    v.GetInt("quiz-max-keywords"),
		ShuffleOptions: v.GetBool("quiz-shuffle"),
	})
	questions, err := synth.Synthesize(cmd.Context(), text)
	if err != nil {
		return err
	}
	return writeJSONTo(cmd.OutOrStdout(), questions)
}

func brailleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "braille [file|-]",
		Short: "Transliterate text to Unicode braille",
		Long:  "Transliterate text to Unicode braille.\nThe input may be plain text, a PDF (.pdf) or a Word document (.docx).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			text, err := readInput(cmd.Context(), args)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return model.E(model.KindEmptyInput, "braille", nil)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), braille.Transliterate(text))
			return err
		},
	}
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export scored quiz results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "tamkeen.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportQuizResults()
	if err != nil {
		return fmt.Errorf("export quiz results: %w", err)
	}

	w, err := createOutput(v.GetString("output"))
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer w.Close()
	if err := writeJSONTo(w, export); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported quiz results", "count", export.Count)
	return nil
}

func assetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage the sign-language asset table",
	}
	cmd.PersistentFlags().String("db", "tamkeen.db", "SQLite database path")

	importCmd := &cobra.Command{
		Use:   "import file.json",
		Short: "Replace the sign table with a JSON object of word to clip reference",
		Args:  cobra.ExactArgs(1),
		RunE:  runAssetsImport,
	}
	importCmd.Flags().Bool("force", false, "Import even if the file is unchanged")
	addLogFlags(importCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the sign table as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := store.New(v.GetString("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			assets, err := db.ListSignAssets()
			if err != nil {
				return err
			}
			return writeJSONTo(cmd.OutOrStdout(), assets)
		},
	}
	addLogFlags(listCmd)

	cmd.AddCommand(importCmd, listCmd)
	return cmd
}

func runAssetsImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	path := args[0]

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash && !v.GetBool("force") {
		slog.Info("sign asset file unchanged, skipping", "path", path)
		return nil
	}

	var words map[string]string
	if err := json.Unmarshal(data, &words); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	assets := make([]model.SignAsset, 0, len(words))
	for word, ref := range words {
		word, ref = strings.TrimSpace(word), strings.TrimSpace(ref)
		if word == "" || ref == "" {
			slog.Warn("skipping blank sign asset entry", "word", word, "ref", ref)
			continue
		}
		assets = append(assets, model.SignAsset{Word: word, Ref: ref})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Word < assets[j].Word })

	if err := db.ReplaceSignAssets(assets); err != nil {
		return fmt.Errorf("store sign assets: %w", err)
	}
	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported sign assets", "path", path, "count", len(assets))
	return nil
}

// readInput returns the text of the named file or stdin. PDF and Word
// documents are recognised by extension and their text extracted.
func readInput(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 {
		switch strings.ToLower(filepath.Ext(args[0])) {
		case ".pdf", ".docx":
			doc, err := extract.File(ctx, args[0])
			if err != nil {
				return "", err
			}
			slog.Debug("extracted document", "file", args[0], "format", doc.Format, "pages", doc.Pages)
			return doc.Text, nil
		}
	}
	in, err := openInput(args)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
