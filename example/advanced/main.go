package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag"
	"github.com/siherrmann/vaultrag/database"
	"github.com/siherrmann/vaultrag/helper"
	"github.com/siherrmann/vaultrag/model"
)

const historyNotes = `<html><head><title>WW1</title><style>p { color: red; }</style></head><body>
<h1>Causes of the First World War</h1>
<p>Militarism, alliances, imperialism and nationalism built tension across Europe before 1914.</p>
<p>The assassination of Archduke Franz Ferdinand in Sarajevo triggered the July Crisis.</p>
<h2>The western front</h2>
<p>Trench warfare froze the western front from late 1914 until the spring offensives of 1918.</p>
</body></html>`

const chemistryNotes = `# Chemical equilibrium

At equilibrium the forward and reverse reaction rates are equal.
Le Chatelier's principle predicts how an equilibrium shifts when concentration, pressure or temperature change.

Adding a catalyst speeds up both directions equally and does not move the equilibrium position.`

func main() {
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

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

	// Two embedding workers sharing a 20 requests/second budget
	ingestConfig := model.DefaultIngestConfig()
	ingestConfig.Workers = 2
	ingestConfig.RequestsPerSecond = 20
	ingestConfig.Burst = 2
	v.SetIngestConfig(ingestConfig)

	if err := v.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	ctx := context.Background()
	student := uuid.New()

	// Write the notes to files, as an upload would
	dir, err := os.MkdirTemp("", "vaultrag-example")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	files := map[string]string{
		"history.html":   historyNotes,
		"chemistry.md":   chemistryNotes,
		"empty-note.txt": "   ",
	}

	fmt.Println("=== Ingesting Files ===")
	docs := map[string]*model.Document{}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			log.Fatalf("Failed to write %s: %v", name, err)
		}

		doc, report, err := v.IngestFile(ctx, path, student, model.Metadata{"semester": "fall"})
		if err != nil {
			// Empty notes fail with no chunks but stay visible with status failed
			fmt.Printf("%s: %v\n", name, err)
			continue
		}
		docs[name] = doc
		fmt.Printf("%s: %s, %d chunks in %s\n", name, report.Status, report.ChunksSucceeded, report.Duration)
	}

	fmt.Println("\n=== Vault Documents ===")
	list, err := v.ListDocuments(ctx, student)
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}
	for _, d := range list {
		fmt.Printf("%s  %-10s %s\n", d.RID, d.Status, d.Title)
	}

	queryText := "What started the war?"

	fmt.Println("\n=== 1. Vault Search ===")
	results, err := v.Search(ctx, queryText, student, nil)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	printResults(results)

	fmt.Println("\n=== 2. Document-Scoped Search ===")
	fmt.Println("Searching only within the chemistry notes...")
	config := model.DefaultQueryConfig()
	config.SimilarityThreshold = model.NoSimilarityThreshold
	scoped, err := v.DocumentScopedSearch(ctx, "How does a catalyst affect equilibrium?", student, []uuid.UUID{docs["chemistry.md"].RID}, &config)
	if err != nil {
		log.Fatalf("Document-scoped search failed: %v", err)
	}
	printResults(scoped)

	fmt.Println("\n=== 3. Switch to IVFFlat ===")
	if err := v.ChangeIndexType(ctx, database.IndexIVFFlat, database.IndexParams{Lists: 4}); err != nil {
		log.Fatalf("Failed to change index: %v", err)
	}
	results, err = v.Search(ctx, queryText, student, nil)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	printResults(results)

	fmt.Println("\n=== 4. Context for the Study Assistant ===")
	prompt, block, err := v.BuildPrompt(ctx, queryText, student, nil)
	if err != nil {
		log.Fatalf("Failed to build prompt: %v", err)
	}
	fmt.Printf("%d sources, truncated: %v\n\n%s\n", len(block.Sources), block.Truncated, prompt)

	fmt.Println("\n=== 5. Delete ===")
	if err := v.DeleteDocument(ctx, student, docs["history.html"].RID); err != nil {
		log.Fatalf("Failed to delete: %v", err)
	}
	results, err = v.Search(ctx, queryText, student, nil)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	fmt.Printf("Results after deleting the history notes: %d\n", len(results))

	fmt.Println("\nAdvanced example completed successfully!")
}

func printResults(results []*model.RetrievalResult) {
	if len(results) == 0 {
		fmt.Println("No results")
		return
	}
	for _, r := range results {
		fmt.Printf("[%d] %.4f %s\n", r.Rank, r.Score, r.Chunk.Content)
	}
}
