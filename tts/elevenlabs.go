// Package tts renders question text into prompt audio ahead of a session.
package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/bosley/snipe/audio"
	"github.com/bosley/snipe/interview"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModel   = "eleven_multilingual_v2"

	// pcm_44100 is raw mono int16 at the capture rate.
	outputFormat = "pcm_44100"
)

// DefaultVoices holds one voice per language.
var DefaultVoices = map[string]string{
	"en": "21m00Tcm4TlvDq8ikWAM",
	"es": "ErXwobaYiN019PkySvjV",
	"fr": "MF3mGyEYCl7XYWbV9V6O",
	"de": "TxGEqnHWrfWFTfGW9XjX",
	"pt": "VR6AewLTigWG4xSOukaG",
}

// Client calls the ElevenLabs text-to-speech API.
type Client struct {
	client *resty.Client
	model  string
	voices map[string]string
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetHeader("xi-api-key", apiKey).
			SetTimeout(60 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		model:  model,
		voices: DefaultVoices,
	}
}

func (c *Client) SetBaseURL(url string) *Client {
	c.client.SetBaseURL(url)
	return c
}

// Voice returns the voice for language, falling back to English.
func (c *Client) Voice(language string) string {
	if voice, ok := c.voices[language]; ok {
		return voice
	}
	return c.voices[interview.DefaultLanguage]
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize returns text spoken in language as a WAV file.
func (c *Client) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	voice := c.Voice(language)
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("voiceID", voice).
		SetQueryParam("output_format", outputFormat).
		SetHeader("Accept", "audio/pcm").
		SetBody(synthesisRequest{Text: text, ModelID: c.model}).
		Post("/v1/text-to-speech/{voiceID}")
	if err != nil {
		return nil, fmt.Errorf("failed to request speech: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to synthesize speech: %s: %s", resp.Status(), resp.String())
	}

	pcm := resp.Body()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("failed to synthesize speech: empty response")
	}
	return audio.EncodeWAV(pcm, audio.DefaultFormat), nil
}
