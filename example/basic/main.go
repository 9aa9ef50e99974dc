package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
)

const biologyNotes = `Cellular respiration turns glucose into usable energy.

Glycolysis happens in the cytoplasm and splits one glucose molecule into two pyruvate molecules.
The Krebs cycle runs in the mitochondrial matrix and releases carbon dioxide.

The electron transport chain in the inner mitochondrial membrane produces most of the ATP.
Oxygen is the final electron acceptor, which is why the process is called aerobic respiration.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	v, err := vaultrag.NewVaultRAG(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create vault: %v", err)
	}
	defer v.Close()

	// Window chunking + local all-MiniLM-L6-v2 embeddings
	if err := v.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()
	student := uuid.New()

	doc := &model.Document{
		OwnerID:    student,
		Title:      "Biology - Cellular respiration",
		SourceKind: model.SourceNote,
		MimeType:   "text/markdown",
		Metadata: model.Metadata{
			"course": "BIO101",
		},
	}

	fmt.Println("Ingesting note...")
	report, err := v.IngestDocument(ctx, doc, biologyNotes)
	if err != nil {
		log.Fatalf("Failed to ingest note: %v", err)
	}
	fmt.Printf("Document %s is %s with %d/%d chunks\n", doc.RID, report.Status, report.ChunksSucceeded, report.ChunksTotal)

	queryText := "Where is most of the ATP produced?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	config := model.DefaultQueryConfig()
	config.SimilarityThreshold = 0.2

	results, err := v.Search(ctx, queryText, student, &config)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(results))
	for _, result := range results {
		fmt.Printf("\n--- Result %d ---\n", result.Rank)
		fmt.Printf("Score: %.4f\n", result.Score)
		fmt.Printf("Content: %s\n", result.Chunk.Content)
	}

	// Another student never sees these notes
	others, err := v.Search(ctx, queryText, uuid.New(), &config)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	fmt.Printf("\nResults for another student: %d\n", len(others))

	prompt, _, err := v.BuildPrompt(ctx, queryText, student, &config)
	if err != nil {
		log.Fatalf("Failed to build prompt: %v", err)
	}
	fmt.Printf("\nSystem prompt:\n%s\n", prompt)

	fmt.Println("\nBasic example completed successfully!")
}
