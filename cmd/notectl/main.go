// Command notectl submits a recording to the clinical notes service and
// prints the verdict and the run's event timeline.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "clinical-notes-service/internal/api/grpc"
	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/pipeline"
)

var titleStyle = lipgloss.NewStyle().Bold(true)

var failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1)

var actionStyles = map[models.VerdictAction]lipgloss.Style{
	models.VerdictApprove:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	models.VerdictRegenerate:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
	models.VerdictHumanReview: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: notectl <run|events|health> [flags]\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "events":
		err = eventsCmd(os.Args[2:])
	case "health":
		err = healthCmd(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	api := fs.String("api", "http://localhost:8080", "Service base URL")
	file := fs.String("audio", "", "Path to WAV file")
	force := fs.Bool("force-human-review", false, "Route the note to human review")
	language := fs.String("language", "", "Language hint")
	attempts := fs.Int("max-attempts", 0, "Regenerate attempts (0 uses the server default)")
	chunk := fs.Float64("chunk-seconds", 0, "Transcribe in chunks of this many seconds")
	width := fs.Int("width", 100, "Timeline wrap width")
	_ = fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-audio is required")
	}
	body, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	q := url.Values{}
	if *force {
		q.Set("forceHumanReview", "true")
	}
	if *language != "" {
		q.Set("language", *language)
	}
	if *attempts > 0 {
		q.Set("maxAttempts", strconv.Itoa(*attempts))
	}
	if *chunk > 0 {
		q.Set("chunkSeconds", strconv.FormatFloat(*chunk, 'f', -1, 64))
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(*api+"/v1/runs?"+q.Encode(), "audio/wav", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		models.PipelineResult
		Error  string                 `json:"error"`
		Result *models.PipelineResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Result != nil {
			printResult(out.Result, *width)
		}
		return fmt.Errorf("%s: %s", resp.Status, out.Error)
	}
	printResult(&out.PipelineResult, *width)
	return nil
}

func printResult(res *models.PipelineResult, width int) {
	fmt.Println(titleStyle.Render("Run " + res.RunID))
	if res.Failed() {
		fmt.Println(failStyle.Render(fmt.Sprintf("failed at %s (%s): %s", res.Failure.Stage, res.Failure.Kind, res.Failure.Message)))
	}
	if v := res.Verdict; v != nil {
		style, ok := actionStyles[v.Action]
		if !ok {
			style = titleStyle
		}
		fmt.Printf("Verdict: %s  %s (attempt %d, retries %d)\n",
			style.Render(string(v.Action)), v.Reasons.Reason, res.Attempt, v.Reasons.RetryCount)
		if v.Reasons.ManualOverride {
			fmt.Printf("Override: %s\n", v.Reasons.OverrideReason)
		}
		fmt.Println(boxStyle.Render(v.FinalNote))
	}
	if n := res.Normalization; n != nil {
		for category, count := range n.Counts() {
			fmt.Printf("  %-12s %d\n", category, count)
		}
	}
	fmt.Println(titleStyle.Render("Timeline"))
	fmt.Print(pipeline.Timeline(res.Events, width))
}

func eventsCmd(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	api := fs.String("api", "http://localhost:8080", "Service base URL")
	runID := fs.String("run", "", "Run ID")
	format := fs.String("format", "text", "json, csv or text")
	_ = fs.Parse(args)

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}
	resp, err := http.Get(*api + "/v1/runs/" + url.PathEscape(*runID) + "/events?format=" + url.QueryEscape(*format))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(b))
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func healthCmd(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("grpc", "localhost:50051", "gRPC server address")
	_ = fs.Parse(args)

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: grpcapi.ServiceName})
	if err != nil {
		return err
	}
	status := resp.GetStatus().String()
	if resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
		fmt.Println(actionStyles[models.VerdictApprove].Render(status))
		return nil
	}
	fmt.Println(failStyle.Render(status))
	return nil
}
