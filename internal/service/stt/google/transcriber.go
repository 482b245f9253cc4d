// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"bytes"
	"context"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/stt"
)

const provider = "google"

// Config holds recognition settings.
type Config struct {
	LanguageCode               string
	Model                      string
	AudioEncoding              string
	EnableAutomaticPunctuation bool
}

// DefaultConfig returns settings for LINEAR16 WAV chunks.
func DefaultConfig() Config {
	return Config{
		LanguageCode:               "en-US",
		AudioEncoding:              "LINEAR16",
		EnableAutomaticPunctuation: true,
	}
}

// recognizer is the subset of speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Transcriber implements stt.Transcriber with synchronous recognition.
type Transcriber struct {
	client recognizer
	cfg    Config
}

// New creates a transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Transcriber{client: c, cfg: cfg}, nil
}

// Provider returns "google".
func (t *Transcriber) Provider() string {
	return provider
}

// Transcribe sends the whole WAV file in one Recognize call. Each result
// becomes a segment ending at its reported end time.
func (t *Transcriber) Transcribe(ctx context.Context, src models.AudioSource, languageHint string) (models.Transcript, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}
	f, err := audio.ProbeWAV(bytes.NewReader(data))
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}

	lang := t.cfg.LanguageCode
	if languageHint != "" {
		lang = languageHint
	}

	resp, err := t.client.Recognize(ctx, t.request(f, lang, data))
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return models.Transcript{}, stt.InputError(provider, src.Name(), err)
		}
		return models.Transcript{}, stt.BackendError(provider, src.Name(), err)
	}
	return toTranscript(resp, lang), nil
}

// Close releases the client connection.
func (t *Transcriber) Close() error {
	return t.client.Close()
}

func (t *Transcriber) request(f audio.Format, lang string, data []byte) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(t.cfg.AudioEncoding),
			SampleRateHertz:            int32(f.SampleRate),
			AudioChannelCount:          int32(f.Channels),
			LanguageCode:               lang,
			Model:                      t.cfg.Model,
			EnableAutomaticPunctuation: t.cfg.EnableAutomaticPunctuation,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	}
}

// toTranscript maps results to segments. Google reports confidence rather
// than log probabilities, so the averages stay absent.
func toTranscript(resp *speechpb.RecognizeResponse, lang string) models.Transcript {
	segs := make([]stt.SegmentResult, 0, len(resp.GetResults()))
	var prevEnd float64
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		end := prevEnd
		if r.GetResultEndTime() != nil {
			end = r.GetResultEndTime().AsDuration().Seconds()
		}
		segs = append(segs, stt.SegmentResult{
			Start: prevEnd,
			End:   end,
			Text:  r.GetAlternatives()[0].GetTranscript(),
		})
		prevEnd = end
		if r.GetLanguageCode() != "" {
			lang = r.GetLanguageCode()
		}
	}
	return stt.Assemble(lang, segs)
}

// parseAudioEncoding converts a string encoding name to the Google Speech enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
