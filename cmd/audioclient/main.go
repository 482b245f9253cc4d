package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/session"
)

// Stream audio in 100ms frames to simulate real-time capture.
const frameIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/visit-16khz.wav", "Path to WAV file (16-bit mono)")
	api := flag.String("api", "http://localhost:8080", "Service base URL")
	chunkSeconds := flag.Float64("chunk-seconds", 0, "Session chunk duration (0 uses the server default)")
	realtime := flag.Bool("realtime", true, "Pace frames at capture speed")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	format, samples, err := audio.DecodeWAV(f)
	if err != nil {
		log.Fatalf("Failed to decode WAV: %v", err)
	}
	log.Printf("WAV file: channels=%d sampleRate=%d bitsPerSample=%d", format.Channels, format.SampleRate, format.BitDepth)
	if format.Channels != 1 || format.BitDepth != 16 {
		log.Fatal("Only 16-bit mono PCM supported")
	}

	// Open a session
	reqBody, _ := json.Marshal(map[string]float64{"chunkSeconds": *chunkSeconds})
	resp, err := http.Post(*api+"/v1/sessions", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	var info session.Info
	err = json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Fatalf("Failed to create session: status=%s err=%v", resp.Status, err)
	}
	log.Printf("Session %s opened (chunk=%.1fs)", info.ID, info.ChunkSeconds)

	wsURL := "ws" + strings.TrimPrefix(*api, "http") + "/v1/sessions/" + info.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var u session.Update
			if err := conn.ReadJSON(&u); err != nil {
				return
			}
			if u.Error != "" {
				log.Printf("chunk %d failed: %s", u.Index, u.Error)
				continue
			}
			log.Printf("chunk %d @%.1fs: %s", u.Index, u.Offset, u.Text)
		}
	}()

	frameSamples := format.SampleRate * frameIntervalMs / 1000
	frame := make([]int16, 0, frameSamples)
	var frames int
	startTime := time.Now()
	for i := 0; i < len(samples); i += frameSamples {
		end := min(i+frameSamples, len(samples))
		frame = frame[:0]
		for _, s := range samples[i:end] {
			frame = append(frame, int16(s))
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodePCM16LE(frame)); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}
		frames++
		if *realtime {
			time.Sleep(frameIntervalMs * time.Millisecond)
		}
	}
	log.Printf("Finished streaming: %d frames in %v", frames, time.Since(startTime))

	if err := conn.WriteMessage(websocket.TextMessage, []byte("end")); err != nil {
		log.Fatalf("Failed to end stream: %v", err)
	}
	<-done

	resp, err = http.Get(*api + "/v1/sessions/" + info.ID)
	if err != nil {
		log.Fatalf("Failed to fetch session: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		log.Fatalf("Failed to decode session: %v", err)
	}
	fmt.Printf("\nTranscript (%d chunks):\n%s\n", info.Chunks, info.Transcript)
}
