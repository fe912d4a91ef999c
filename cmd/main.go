package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resume-rag/internal/chromemdb"
	"resume-rag/internal/config"
	"resume-rag/internal/db"
	"resume-rag/internal/embedding"
	"resume-rag/internal/helper"
	"resume-rag/internal/llmservice"
	"resume-rag/internal/models"
	"resume-rag/internal/rag"
)

const configFilePath = "./configs/config.yaml"

type options struct {
	file        string
	query       string
	collection  string
	k           int
	compare     bool
	interactive bool
	jsonOut     bool
	list        bool
	remove      bool
	exportFile  string
	importFile  string
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var opts options
	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	flag.StringVar(&opts.file, "file", "", "Resume to index (.pdf, .docx, .pptx, .xlsx, .md, .txt)")
	flag.StringVar(&opts.query, "query", "", "Question to ask about the indexed resume")
	flag.StringVar(&opts.collection, "collection", "", "Collection to query instead of the configured one")
	flag.IntVar(&opts.k, "k", 0, "Number of passages to retrieve (default retrieval_k)")
	flag.BoolVar(&opts.compare, "compare", false, "Also answer without resume context")
	flag.BoolVar(&opts.interactive, "interactive", false, "Ask questions from stdin")
	flag.BoolVar(&opts.jsonOut, "json", false, "Print answers as JSON")
	flag.BoolVar(&opts.list, "list", false, "List stored collections")
	flag.BoolVar(&opts.remove, "delete", false, "Delete the collection and exit")
	flag.StringVar(&opts.exportFile, "export", "", "Export the collection to this file")
	flag.StringVar(&opts.importFile, "import", "", "Import the collection from this file")
	suggest := flag.Bool("suggest", false, "Print suggested questions")
	flag.Parse()

	if *suggest {
		for i, q := range models.SuggestedQuestions {
			fmt.Printf("%2d. %s\n", i+1, q)
		}
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(&cfg.Log)
	log.Debug().Str("vector_store", cfg.VectorStore).Interface("rag", cfg.RAG).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		log.Fatal().Err(err).Msg("Error")
	}
}

func setupLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	index, chromemDB, closeIndex, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	if opts.importFile != "" || opts.exportFile != "" || opts.list || opts.remove {
		if chromemDB == nil {
			return fmt.Errorf("-import, -export, -list and -delete need the %s vector store", config.StoreChromem)
		}
	}

	name := cfg.RAG.CollectionName
	if opts.collection != "" {
		name = opts.collection
	}

	if opts.remove {
		if err := chromemDB.DeleteCollection(name); err != nil {
			return err
		}
		log.Info().Str("collection", name).Msg("Deleted collection")
		return nil
	}

	if opts.importFile != "" {
		if err := chromemDB.Import(opts.importFile, name); err != nil {
			return err
		}
		log.Info().Str("collection", name).Str("file", opts.importFile).Msg("Imported collection")
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return err
	}
	llm, err := llmservice.NewModel(&cfg.InferenceLLM)
	if err != nil {
		return err
	}
	r := rag.NewRAG(index, embedding.NewClient(embedder), llmservice.NewGenerator(llm, cfg.InferenceLLM.Model), cfg)

	var handle models.IndexHandle
	if opts.file != "" {
		start := time.Now()
		handle, err = r.ProcessFile(ctx, opts.file)
		if err != nil {
			return err
		}
		name = handle.Name()
		log.Info().Str("collection", name).Int("passages", handle.Count()).
			Dur("took", time.Since(start)).Msg("Resume processed")
	}

	if opts.list {
		for n, count := range chromemDB.ListCollections() {
			fmt.Printf("%s\t%d\n", n, count)
		}
	}

	if opts.exportFile != "" {
		if err := chromemDB.Export(opts.exportFile, name); err != nil {
			return err
		}
		log.Info().Str("collection", name).Str("file", opts.exportFile).Msg("Exported collection")
	}

	if opts.query == "" && !opts.interactive {
		if opts.file == "" && opts.importFile == "" && opts.exportFile == "" && !opts.list {
			flag.Usage()
		}
		return nil
	}

	if handle == nil {
		handle, err = r.OpenCollection(ctx, name)
		if err != nil {
			return fmt.Errorf("%w (index a resume with -file first)", err)
		}
	}

	history, err := rag.NewHistory()
	if err != nil {
		return err
	}
	qopts := rag.QueryOptions{K: opts.k, IncludeComparison: opts.compare}

	if opts.query != "" {
		history, err = ask(ctx, r, handle, history, opts.query, qopts, opts.jsonOut)
		if err != nil {
			return err
		}
	}
	if opts.interactive {
		return interactive(ctx, os.Stdin, r, handle, history, qopts, opts.jsonOut)
	}
	return nil
}

// openIndex returns the configured vector store. The chromem manager is
// also returned when in use, for import, export and listing.
func openIndex(ctx context.Context, cfg *config.Config) (models.VectorIndex, *chromemdb.VectorDBManager, func(), error) {
	switch cfg.VectorStore {
	case config.StorePgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB); err != nil {
			bunDB.Close()
			return nil, nil, nil, err
		}
		store := db.NewStore(bunDB)
		return store, nil, func() { store.Close() }, nil
	default:
		if err := helper.CreateFolder(cfg.RAG.PersistPath); err != nil {
			return nil, nil, nil, err
		}
		m, err := chromemdb.NewVectorDBManager(cfg.RAG.PersistPath, false, cfg.RAG.Compress, cfg.RAG.EncryptionKey)
		if err != nil {
			return nil, nil, nil, err
		}
		return m, m, func() {}, nil
	}
}

func ask(ctx context.Context, r *rag.RAG, handle models.IndexHandle, history rag.History, question string, opts rag.QueryOptions, jsonOut bool) (rag.History, error) {
	rec, history, err := r.Query(ctx, handle, history, question, opts)
	if err != nil {
		return history, err
	}
	if jsonOut {
		helper.PrettyPrint(os.Stdout, rec)
	} else {
		printRecord(os.Stdout, rec)
	}
	return history, nil
}

func interactive(ctx context.Context, in io.Reader, r *rag.RAG, handle models.IndexHandle, history rag.History, opts rag.QueryOptions, jsonOut bool) error {
	fmt.Println("Ask about the resume. Type 'history' for earlier answers, 'suggest' for ideas, 'exit' to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "suggest":
			for _, q := range models.SuggestedQuestions {
				fmt.Println("  " + q)
			}
			continue
		case "history":
			for _, rec := range history.Previous() {
				fmt.Printf("[%s] %s\n", rec.AskedAt.Format(time.Kitchen), rec.Question)
			}
			if latest, ok := history.Latest(); ok {
				fmt.Printf("[%s] %s (latest)\n", latest.AskedAt.Format(time.Kitchen), latest.Question)
			}
			continue
		}

		next, err := ask(ctx, r, handle, history, line, opts, jsonOut)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Error answering question")
			continue
		}
		history = next
	}
}

func printRecord(w io.Writer, rec models.AnswerRecord) {
	fmt.Fprintf(w, "Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>\n%s\n\n", rec.Question)

	fmt.Fprintln(w, "Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for i, s := range rec.Sources {
		excerpt := []rune(strings.Join(strings.Fields(s.Passage.Content), " "))
		if len(excerpt) > 200 {
			excerpt = append(excerpt[:200], '.', '.', '.')
		}
		fmt.Fprintf(w, "[%d] page %d (score %.3f): %s\n", i+1, s.Passage.Page+1, s.Score, string(excerpt))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>\n%s\n\n", rec.Answer)

	if rec.Comparison != "" {
		fmt.Fprintf(w, "Without resume: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>\n%s\n\n", rec.Comparison)
	}
}
