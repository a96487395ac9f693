// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

var (
	serverURL string
	maxSteps  int
	noWait    bool

	rootCmd = &cobra.Command{
		Use:   "research",
		Short: "A CLI for the Aleutian research service",
		Long:  `Starts research runs against the research service and inspects their progress, answers, and citations.`,
	}
	askCmd = &cobra.Command{
		Use:   "ask [task]",
		Short: "Start a research run and wait for its answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}
	getCmd = &cobra.Command{
		Use:   "get [run-id]",
		Short: "Print the current state of a run",
		Args:  cobra.ExactArgs(1),
		Run:   runGetCommand,
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Run:   runListCommand,
	}
	followupCmd = &cobra.Command{
		Use:   "followup [run-id] [question]",
		Short: "Ask a follow-up question about a finished run",
		Args:  cobra.MinimumNArgs(2),
		Run:   runFollowupCommand,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(),
		"research service base URL")
	askCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the run's step budget")
	askCmd.Flags().BoolVar(&noWait, "no-wait", false, "print the run id and exit without waiting")
	rootCmd.AddCommand(askCmd, getCmd, listCmd, followupCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultServerURL() string {
	if env := os.Getenv("RESEARCH_SERVER_URL"); env != "" {
		return strings.TrimSuffix(env, "/")
	}
	return "http://localhost:12220"
}

// pretty reports whether stdout is a real terminal. Piped output stays
// machine-friendly JSON.
func pretty() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func postJSON(path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func getJSON(path string, out any) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func runAskCommand(cmd *cobra.Command, args []string) {
	task := strings.Join(args, " ")

	var started struct {
		RunID string `json:"run_id"`
	}
	payload := map[string]any{"task": task}
	if maxSteps > 0 {
		payload["max_steps"] = maxSteps
	}
	if err := postJSON("/v1/research", payload, &started); err != nil {
		fatal("failed to start the run: %v", err)
	}

	if noWait {
		fmt.Println(started.RunID)
		return
	}
	if pretty() {
		fmt.Printf("run %s started, waiting...\n", started.RunID)
	}

	run := waitForRun(started.RunID)
	printRunAnswer(run)
	if run.Status != datatypes.RunStatusCompleted {
		os.Exit(1)
	}
}

// waitForRun polls the run until it reaches a terminal status.
func waitForRun(runID string) *datatypes.RunState {
	lastPhase := ""
	for {
		var run datatypes.RunState
		if err := getJSON("/v1/research/"+runID, &run); err != nil {
			fatal("failed to read the run: %v", err)
		}
		if pretty() && string(run.Phase) != lastPhase {
			fmt.Printf("  phase: %s (%d steps)\n", run.Phase, len(run.Steps))
			lastPhase = string(run.Phase)
		}
		if run.Terminal() {
			return &run
		}
		time.Sleep(time.Second)
	}
}

func printRunAnswer(run *datatypes.RunState) {
	if !pretty() {
		raw, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(raw))
		return
	}

	fmt.Printf("\n[%s] %s\n\n%s\n", run.Status, run.ID, run.FinalAnswer)
	if len(run.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range run.Citations {
			fmt.Printf("  [%d] %s\n", c.ID, c.Source)
		}
	}
	if run.Error != "" {
		fmt.Printf("\nerror: %s\n", run.Error)
	}
}

func runGetCommand(cmd *cobra.Command, args []string) {
	var run datatypes.RunState
	if err := getJSON("/v1/research/"+args[0], &run); err != nil {
		fatal("failed to read the run: %v", err)
	}
	printRunAnswer(&run)
}

func runListCommand(cmd *cobra.Command, args []string) {
	var listing struct {
		Runs []datatypes.RunState `json:"runs"`
	}
	if err := getJSON("/v1/research?limit=20", &listing); err != nil {
		fatal("failed to list runs: %v", err)
	}

	if !pretty() {
		raw, _ := json.MarshalIndent(listing.Runs, "", "  ")
		fmt.Println(string(raw))
		return
	}
	for _, run := range listing.Runs {
		task := run.Task
		if len(task) > 60 {
			task = task[:57] + "..."
		}
		fmt.Printf("%s  %-17s  %s\n", run.ID, run.Status, task)
	}
}

func runFollowupCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args[1:], " ")

	var reply struct {
		Answer string `json:"answer"`
	}
	err := postJSON("/v1/research/"+args[0]+"/followup",
		map[string]any{"question": question}, &reply)
	if err != nil {
		fatal("follow-up failed: %v", err)
	}
	fmt.Println(reply.Answer)
}
