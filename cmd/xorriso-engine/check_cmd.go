package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/xorriso-engine/internal/burnpipeline"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/drive"
	"github.com/open-edge-platform/xorriso-engine/internal/mediacheck"
	"github.com/open-edge-platform/xorriso-engine/internal/utils/logger"
)

// Check command flags
var (
	checkJobPath string          // Path to a check-job JSON document
	checkFormat  string = "text" // Output format for the spot list
)

// checkJobSchema validates a check-job document before it is unmarshaled,
// so a malformed job fails with a field-level message instead of a partial
// zero-valued run.
const checkJobSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "mode":            {"enum": ["track", "range", "capacity"]},
    "minLba":          {"type": "integer", "minimum": 0},
    "maxLba":          {"type": "integer", "minimum": 0},
    "chunkBlocks":     {"type": "integer", "minimum": 1},
    "md5":             {"type": "boolean"},
    "asyncChunkCount": {"type": "integer", "minimum": 0},
    "slowThresholdMs": {"type": "integer", "minimum": 0},
    "timeLimitS":      {"type": "integer", "minimum": 0},
    "itemLimit":       {"type": "integer", "minimum": 0},
    "abortFilePath":   {"type": "string"},
    "sectorMapPath":   {"type": "string"},
    "retries":         {"type": "integer", "minimum": 0}
  },
  "required": ["mode", "maxLba"],
  "additionalProperties": false
}`

// checkJobDoc is the on-disk shape of a check-job document.
type checkJobDoc struct {
	Mode            string `json:"mode"`
	MinLBA          int64  `json:"minLba"`
	MaxLBA          int64  `json:"maxLba"`
	ChunkBlocks     int64  `json:"chunkBlocks"`
	MD5             bool   `json:"md5"`
	AsyncChunkCount int    `json:"asyncChunkCount"`
	SlowThresholdMs int64  `json:"slowThresholdMs"`
	TimeLimitS      int64  `json:"timeLimitS"`
	ItemLimit       int    `json:"itemLimit"`
	AbortFilePath   string `json:"abortFilePath"`
	SectorMapPath   string `json:"sectorMapPath"`
	Retries         int    `json:"retries"`
}

// createCheckCommand creates the check subcommand
func createCheckCommand() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check [flags] IMAGE_FILE",
		Short: "verifies readable block ranges on a target",
		Long: `Check walks the target interval-wise, classifies every block
		range by read outcome (good, slow, partial, unreadable), optionally
		recognizes recorded MD5 tag chains, and prints the resulting spot
		list.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch checkFormat {
			case "text", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported --format %q (supported: text, json, yaml)", checkFormat)
			}
		},
		RunE:              executeCheck,
		ValidArgsFunction: imageFileCompletion,
	}

	checkCmd.Flags().StringVar(&checkJobPath, "job", "",
		"Path to a check-job JSON document (defaults to a whole-capacity scan)")

	checkCmd.Flags().StringVar(&checkFormat, "format", "text",
		"Specify the output format for the spot list")

	return checkCmd
}

// executeCheck handles the check command execution logic
func executeCheck(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	imageFile := args[0]
	if err := ensureFileExists(imageFile); err != nil {
		return err
	}

	h, d, err := openFileDrive(imageFile, drive.RoleIndev)
	if err != nil {
		return wrapDiagError(err)
	}

	job, err := loadCheckJob(checkJobPath, d.BlocksTotal)
	if err != nil {
		return wrapDiagError(err)
	}
	log.Infof("Check run %s: lba [%d,%d) chunk=%d", job.ID, job.MinLBA, job.MaxLBA, job.ChunkBlocks)

	sink := diag.NewSink(loadedConfig.AbortThreshold)

	var hasher mediacheck.HashWorker
	var md5State *mediacheck.MD5ChainState
	if job.MD5Enabled {
		chunkBytes := job.ChunkBlocks * 2048
		if job.AsyncChunkCount > 1 {
			hasher = mediacheck.NewAsyncHasher(loadedConfig.MD5RingMemoryBudgetBytes, chunkBytes)
		} else {
			hasher = mediacheck.NewSyncHasher()
		}
		md5State = mediacheck.NewMD5ChainState(job.MinLBA - job.MinLBA%32)
	}

	// A scan can run for a long time; let an interrupt end it cleanly
	// with an untested tail spot instead of killing the process.
	ctx, stop := burnpipeline.ArmCancelOnSignal(cmd.Context())
	defer stop()

	engine := mediacheck.New(h, sink, nil, hasher, md5State)
	spots, status, err := engine.Run(ctx, job)
	if hasher != nil {
		_ = hasher.Close()
	}
	if err != nil {
		return wrapDiagError(err)
	}

	if err := writeSpots(cmd, spots.Snapshot(), checkFormat); err != nil {
		return err
	}
	if status == mediacheck.StatusAborted {
		return fmt.Errorf("check run %s aborted (status %d)", job.ID, int(status))
	}
	return nil
}

// loadCheckJob builds a CheckJob from a validated job document, or a
// whole-capacity default when no document was given.
func loadCheckJob(path string, capacityBlocks int64) (mediacheck.CheckJob, error) {
	job := mediacheck.NewCheckJob(mediacheck.ModeWholeCapacity, time.Now())
	job.MaxLBA = capacityBlocks
	job.ChunkBlocks = 32
	if path == "" {
		return job, nil
	}

	data, err := readFileChecked(path)
	if err != nil {
		return job, err
	}
	if err := validateCheckJob(data); err != nil {
		return job, diag.Wrap(diag.KindFormat, "check-job document "+path, err)
	}

	var doc checkJobDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return job, diag.Wrap(diag.KindFormat, "parse check-job document "+path, err)
	}

	switch doc.Mode {
	case "track":
		job.Mode = mediacheck.ModeTrackByTrack
	case "range":
		job.Mode = mediacheck.ModeImageRange
	case "capacity":
		job.Mode = mediacheck.ModeWholeCapacity
	}
	job.MinLBA = doc.MinLBA
	job.MaxLBA = doc.MaxLBA
	if doc.ChunkBlocks > 0 {
		job.ChunkBlocks = doc.ChunkBlocks
	}
	job.MD5Enabled = doc.MD5
	job.AsyncChunkCount = doc.AsyncChunkCount
	job.SlowThreshold = time.Duration(doc.SlowThresholdMs) * time.Millisecond
	job.TimeLimit = time.Duration(doc.TimeLimitS) * time.Second
	job.ItemLimit = doc.ItemLimit
	job.AbortFilePath = doc.AbortFilePath
	job.SectorMapPath = doc.SectorMapPath
	job.RetryPolicy = mediacheck.RetryPolicy{MaxRetries: doc.Retries}
	return job, nil
}

func validateCheckJob(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("check-job.schema.json", strings.NewReader(checkJobSchema)); err != nil {
		return err
	}
	schema, err := compiler.Compile("check-job.schema.json")
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func writeSpots(cmd *cobra.Command, spots []mediacheck.Spot, format string) error {
	out := cmd.OutOrStdout()

	type spotDoc struct {
		StartLBA int64  `json:"startLba" yaml:"startLba"`
		Blocks   int64  `json:"blocks" yaml:"blocks"`
		Quality  string `json:"quality" yaml:"quality"`
	}
	docs := make([]spotDoc, 0, len(spots))
	for _, s := range spots {
		docs = append(docs, spotDoc{StartLBA: s.StartLBA, Blocks: s.BlockCount, Quality: s.Quality.String()})
	}

	switch format {
	case "text":
		for _, d := range docs {
			fmt.Fprintf(out, "%10d %10d %s\n", d.StartLBA, d.Blocks, d.Quality)
		}
		return nil
	case "json":
		b, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil
	case "yaml":
		b, err := yaml.Marshal(docs)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
