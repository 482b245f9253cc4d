package google

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/audio"
)

type fakeRecognizer struct {
	resp *speechpb.RecognizeResponse
	err  error
	req  *speechpb.RecognizeRequest
}

func (f *fakeRecognizer) Recognize(_ context.Context, req *speechpb.RecognizeRequest, _ ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error { return nil }

func wavSource(t *testing.T) models.AudioSource {
	t.Helper()
	b, err := audio.EncodeWAV(audio.Format{SampleRate: 16000, Channels: 2, BitDepth: 16}, make([]int, 3200))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return models.MemorySource{Label: "chunk.wav", Data: b}
}

func result(text string, end time.Duration) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives:  []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.9}},
		ResultEndTime: durationpb.New(end),
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if !cfg.EnableAutomaticPunctuation {
		t.Error("expected automatic punctuation to be enabled")
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"invalid", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTranscribe_MapsResults(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			result("I have a cough", 1500*time.Millisecond),
			{},
			result(" since Monday ", 3*time.Second),
		},
	}}
	tr := &Transcriber{client: fake, cfg: DefaultConfig()}

	got, err := tr.Transcribe(context.Background(), wavSource(t), "en-GB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Text != "I have a cough since Monday" {
		t.Errorf("expected joined text, got %q", got.Text)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got.Segments))
	}
	if got.Segments[1].Start != 1.5 || got.Segments[1].End != 3 {
		t.Errorf("expected second segment 1.5-3, got %+v", got.Segments[1])
	}
	if got.AverageLogProbability != nil {
		t.Error("expected absent log probability")
	}
	if got.LanguageCode != "en-GB" {
		t.Errorf("expected language 'en-GB', got %q", got.LanguageCode)
	}

	cfg := fake.req.GetConfig()
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetAudioChannelCount() != 2 {
		t.Errorf("expected request to carry wav format, got %d Hz %d ch", cfg.GetSampleRateHertz(), cfg.GetAudioChannelCount())
	}
	if cfg.GetLanguageCode() != "en-GB" {
		t.Errorf("expected language hint in request, got %q", cfg.GetLanguageCode())
	}
}

func TestTranscribe_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"invalid argument", status.Error(codes.InvalidArgument, "bad audio"), models.ErrInput},
		{"unavailable", status.Error(codes.Unavailable, "down"), models.ErrBackend},
		{"plain", errors.New("boom"), models.ErrBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Transcriber{client: &fakeRecognizer{err: tt.err}, cfg: DefaultConfig()}
			_, err := tr.Transcribe(context.Background(), wavSource(t), "")
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestTranscribe_RejectsNonWAV(t *testing.T) {
	fake := &fakeRecognizer{}
	tr := &Transcriber{client: fake, cfg: DefaultConfig()}

	_, err := tr.Transcribe(context.Background(), models.MemorySource{Label: "x", Data: []byte("garbage")}, "")
	if !errors.Is(err, models.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
	if fake.req != nil {
		t.Error("expected no backend call for unreadable audio")
	}
}
