// assess-extraction measures how well the configured model turns questions
// into intents the catalog accepts. Each case is run through extraction,
// validation and compilation (never execution) and compared with its
// expected outcome. The report is printed as JSON.
//
// Usage: go run ./scripts/assess-extraction [-cases file] [-catalog file]
//
// The model is configured the same way as the server (config.yaml, LLM_* env).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/config"
	"github.com/ekaya-inc/intentgate/pkg/llm"
	"github.com/ekaya-inc/intentgate/pkg/services"
	"github.com/ekaya-inc/intentgate/pkg/validator"
)

// AssessmentResult is the full report.
type AssessmentResult struct {
	CommitInfo     string           `json:"commit_info"`
	ModelUsed      string           `json:"model_used"`
	CatalogVersion string           `json:"catalog_version"`
	Total          int              `json:"total"`
	Passed         int              `json:"passed"`
	Cases          []CaseAssessment `json:"cases"`
	FinalScore     int              `json:"final_score"`
}

func main() {
	casesPath := flag.String("cases", "scripts/assess-extraction/cases.yaml", "YAML file of questions and expected intents")
	catalogPath := flag.String("catalog", "", "catalog YAML (defaults to catalog.path from config)")
	flag.Parse()

	cfg, err := config.Load("assess")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.LLM.IsAvailable() {
		fmt.Fprintf(os.Stderr, "No language model configured (set LLM_MODEL and LLM_API_KEY or LLM_BASE_URL)\n")
		os.Exit(1)
	}
	if *catalogPath == "" {
		*catalogPath = cfg.Catalog.Path
	}

	cases, err := loadCases(*casesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load cases: %v\n", err)
		os.Exit(1)
	}

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	holder, err := catalog.NewHolder(ctx, catalog.NewFileSource(*catalogPath), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		os.Exit(1)
	}

	client, err := llm.NewClientFromConfig(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create LLM client: %v\n", err)
		os.Exit(1)
	}
	extractor := services.NewIntentExtractor(client, services.ExtractorConfig{Temperature: cfg.LLM.Temperature}, logger)

	opts := validator.DefaultOptions()
	opts.RequireSnapshotTimeRange = cfg.Validation.RequireSnapshotTimeRange
	opts.UseCatalogDefaultTimeDimension = cfg.Validation.UseCatalogDefaultTimeDimension
	opts.Location = cfg.Location()
	svc := services.NewQueryService(holder, extractor, nil, opts, logger)

	result := AssessmentResult{
		CommitInfo:     getCommitInfo(),
		ModelUsed:      cfg.LLM.Provider + "/" + cfg.LLM.Model,
		CatalogVersion: holder.Current().Version(),
		Total:          len(cases),
	}
	for i, c := range cases {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", i+1, len(cases), c.Question)
		a := assessCase(c, svc.Ask(ctx, c.Question, services.AskOptions{}))
		if a.Passed {
			result.Passed++
		}
		result.Cases = append(result.Cases, a)
	}
	result.FinalScore = score(result.Cases)

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
}

func getCommitInfo() string {
	output, err := exec.Command("git", "describe", "--always", "--dirty").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}
