package cli

import (
	"fmt"

	"github.com/compozy/techrag/engine/knowledge"
	"github.com/compozy/techrag/pkg/config"
	"github.com/compozy/techrag/pkg/logger"
	"github.com/spf13/cobra"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.yaml>...",
		Short: "Embed documents and store them in the knowledge base",
		Long: "Load documents from YAML files, split them into chunks, embed them and upsert them into " +
			"the vector store. Parent documents are stored when a database DSN is configured.",
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
	cmd.Flags().Int("chunk-size", 1200, "Maximum characters per chunk")
	cmd.Flags().Int("chunk-overlap", 150, "Characters shared by consecutive chunks")
	cmd.Flags().Int("batch-size", 16, "Chunks embedded per request")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	rt, err := newKnowledgeRuntime(ctx, config.FromContext(ctx))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()
	opts := knowledge.IngestOptions{Retries: 2}
	opts.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	opts.ChunkOverlap, _ = cmd.Flags().GetInt("chunk-overlap")
	opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	in, err := rt.ingester(opts)
	if err != nil {
		return err
	}
	total := knowledge.IngestResult{}
	for _, path := range args {
		docs, err := knowledge.LoadDocuments(path)
		if err != nil {
			return err
		}
		res, err := in.Ingest(ctx, docs)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		log.Info("Ingested file", "file", path, "documents", res.Documents, "chunks", res.Chunks)
		total.Documents += res.Documents
		total.Chunks += res.Chunks
		total.Parents += res.Parents
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d document(s) as %d chunk(s), %d parent(s)\n",
		total.Documents, total.Chunks, total.Parents)
	return err
}
