// contextd builds a context payload for a single message against a chosen
// interaction store and prints the assembled prompt, or the full payload as
// JSON.
//
// Examples:
//
//	go run ./cmd/contextd -message "why is the deployment failing?"
//
//	export DATABASE_URL=postgres://localhost/ctx
//	go run ./cmd/contextd -store postgres -message "explain the retry logic" -json
//
//	go run ./cmd/contextd -store mongo -mongo-uri mongodb://localhost:27017 \
//	    -session team-42 -message "how do I run the tests?"
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	json "github.com/alpkeskin/gotoon"

	"github.com/Protocol-Lattice/go-context/src/engine"
	"github.com/Protocol-Lattice/go-context/src/index"
	"github.com/Protocol-Lattice/go-context/src/model"
	"github.com/Protocol-Lattice/go-context/src/store"
)

var (
	flagStore    = flag.String("store", "memory", "Interaction store: memory|postgres|mongo")
	flagMessage  = flag.String("message", "", "User message (ignored if -stdin is set)")
	flagStdin    = flag.Bool("stdin", false, "Read user message from STDIN")
	flagSession  = flag.String("session", "", "Restrict context to one session")
	flagBudget   = flag.Int("budget", 4000, "Context budget in characters")
	flagJSON     = flag.Bool("json", false, "Print the full payload as JSON")
	flagDebug    = flag.Bool("debug", false, "Print relevance debug output instead of a payload")
	flagLexical  = flag.Bool("lexical", false, "Disable semantic narrowing")
	flagWarm     = flag.Bool("warm", false, "Warm the embedding index before serving the request")
	flagTimeout  = flag.Duration("timeout", 30*time.Second, "Overall request timeout")
	flagSeed     = flag.Bool("seed", false, "Seed the in-memory store with demo interactions")
	mongoURI     = flag.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	mongoDB      = flag.String("mongo-db", "context", "MongoDB database name")
	mongoColl    = flag.String("mongo-collection", "interactions", "MongoDB collection name")
	qdrantURL    = flag.String("qdrant-url", "", "Qdrant base URL; empty keeps the in-process index")
	qdrantColl   = flag.String("qdrant-collection", "context_embeddings", "Qdrant collection name")
	qdrantVector = flag.Int("qdrant-dim", 768, "Qdrant vector dimension")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stderr, "contextd: ", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	message := strings.TrimSpace(*flagMessage)
	if *flagStdin {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			logger.Fatalf("read stdin: %v", err)
		}
		message = strings.TrimSpace(string(data))
	}
	if message == "" {
		flag.Usage()
		logger.Fatal("a -message (or -stdin) is required")
	}

	st, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatalf("open %s store: %v", *flagStore, err)
	}
	defer closeStore()

	opts := engine.DefaultOptions()
	opts.LexicalOnly = *flagLexical
	if *qdrantURL != "" && !*flagLexical {
		backend := index.NewQdrantBackend(*qdrantURL, *qdrantColl, os.Getenv("QDRANT_API_KEY"))
		if err := backend.EnsureCollection(ctx, *qdrantVector); err != nil {
			logger.Printf("qdrant unavailable, staying in-process: %v", err)
		} else {
			opts.Backend = backend
		}
	}

	eng := engine.NewEngine(st, opts).WithLogger(logger)

	if *flagWarm {
		if err := eng.WarmIndex(ctx); err != nil {
			logger.Printf("warm index: %v", err)
		}
	}

	if *flagDebug {
		dbg, err := eng.RelevanceDebug(ctx, message, *flagSession)
		if err != nil {
			logger.Fatalf("relevance debug: %v", err)
		}
		printJSON(dbg)
		return
	}

	payload, err := eng.GetContext(ctx, message, *flagSession, *flagBudget)
	if err != nil {
		logger.Fatalf("get context: %v", err)
	}
	if *flagJSON {
		printJSON(payload)
		return
	}
	fmt.Println(payload.Prompt)
	fmt.Fprintf(os.Stderr, "sections=%d chars=%d semantic=%s store=%s\n",
		payload.Meta.IncludedCount, payload.Meta.TotalChars,
		payload.Meta.SemanticStatus, payload.Meta.StoreStatus)
}

func openStore(ctx context.Context, logger *log.Logger) (store.InteractionStore, func(), error) {
	switch *flagStore {
	case "memory":
		mem := store.NewInMemoryStore()
		if *flagSeed {
			seed(mem)
		}
		return mem, func() {}, nil
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for -store postgres")
		}
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.CreateSchema(ctx); err != nil {
			logger.Printf("create schema: %v", err)
		}
		return pg, pg.Close, nil
	case "mongo":
		mg, err := store.NewMongoStore(ctx, *mongoURI, *mongoDB, *mongoColl)
		if err != nil {
			return nil, nil, err
		}
		return mg, func() {
			if err := mg.Close(context.Background()); err != nil {
				logger.Printf("close mongo: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", *flagStore)
	}
}

func seed(mem *store.InMemoryStore) {
	now := time.Now().UTC()
	mem.Add(model.Interaction{
		Timestamp: now.Add(-30 * time.Minute),
		SessionID: "demo",
		Kind:      model.KindClientRequest,
		TextIn:    "deploy the api service to staging with the new kubernetes manifest",
		Status:    model.StatusSuccess,
	})
	mem.Add(model.Interaction{
		Timestamp: now.Add(-20 * time.Minute),
		SessionID: "demo",
		Kind:      model.KindAgentResponse,
		TextOut:   "staging rollout completed, two pods healthy",
		Status:    model.StatusSuccess,
	})
	mem.Add(model.Interaction{
		Timestamp: now.Add(-5 * time.Minute),
		SessionID: "demo",
		Kind:      model.KindConversationTurn,
		TextIn:    "the deployment to production is failing with an image pull error",
		TextOut:   "check the registry credentials in the pull secret",
		Status:    model.StatusError,
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
