package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"reelcast/internal/config"
	"reelcast/internal/pkg/id"
)

const (
	defaultVolcAPIURL  = "https://openspeech.bytedance.com/api/v1/tts"
	defaultVolcCluster = "volcano_tts"
	defaultVolcVoice   = "en_male_adam_mars_bigtts"
	volcSuccessCode    = 3000
)

// VolcProvider 火山引擎 openspeech TTS
// 参考: https://openspeech.bytedance.com/api/v1/tts
type VolcProvider struct {
	apiURL      string
	accessToken string
	appID       string
	cluster     string
	voiceType   string
	language    string
	sampleRate  int
	speedRatio  float64
	httpClient  *http.Client
}

// NewVolcProvider 创建火山引擎 TTS 提供方
func NewVolcProvider(cfg config.VolcTTSConfig) (*VolcProvider, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("TTS access token is required")
	}

	p := &VolcProvider{
		apiURL:      cfg.APIURL,
		accessToken: cfg.AccessToken,
		appID:       cfg.AppID,
		cluster:     cfg.Cluster,
		voiceType:   cfg.VoiceType,
		language:    cfg.Language,
		sampleRate:  cfg.SampleRate,
		speedRatio:  cfg.SpeedRatio,
	}
	if p.apiURL == "" {
		p.apiURL = defaultVolcAPIURL
	}
	if p.cluster == "" {
		p.cluster = defaultVolcCluster
	}
	if p.voiceType == "" {
		p.voiceType = defaultVolcVoice
	}
	if p.language == "" {
		p.language = "en"
	}
	if p.sampleRate == 0 {
		p.sampleRate = 44100
	}
	if p.speedRatio == 0 {
		p.speedRatio = 1.0
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	p.httpClient = &http.Client{Timeout: timeout}

	return p, nil
}

// Name 提供方名称
func (p *VolcProvider) Name() string { return "volc" }

// Ext 输出 mp3
func (p *VolcProvider) Ext() string { return ".mp3" }

type volcResponse struct {
	ReqID   string `json:"reqid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Synthesize 合成语音并写入 outPath
func (p *VolcProvider) Synthesize(ctx context.Context, text, outPath string) error {
	requestID := id.New()
	reqBody, err := json.Marshal(p.buildRequest(text, requestID))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer; %s", p.accessToken))
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("request_id", requestID).
		Int("chars", len(text)).
		Msg("sending TTS request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed, status: %d, body: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var apiResp volcResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if apiResp.Code != volcSuccessCode {
		message := apiResp.Message
		if message == "" {
			message = "unknown error"
		}
		return fmt.Errorf("API response error: %s (code: %d)", message, apiResp.Code)
	}
	if apiResp.Data == "" {
		return errors.New("audio data not found in response")
	}

	audio, err := base64.StdEncoding.DecodeString(apiResp.Data)
	if err != nil {
		return fmt.Errorf("failed to decode audio data: %w", err)
	}
	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

// buildRequest 构建请求体
func (p *VolcProvider) buildRequest(text, requestID string) map[string]any {
	appConfig := map[string]any{
		"token":   p.accessToken,
		"cluster": p.cluster,
	}
	if p.appID != "" {
		appConfig["appid"] = p.appID
	}

	return map[string]any{
		"app":  appConfig,
		"user": map[string]any{"uid": requestID},
		"audio": map[string]any{
			"voice_type":   p.voiceType,
			"encoding":     "mp3",
			"rate":         p.sampleRate,
			"speed_ratio":  p.speedRatio,
			"volume_ratio": 1.0,
			"pitch_ratio":  1.0,
			"language":     p.language,
		},
		"request": map[string]any{
			"reqid":     requestID,
			"text":      text,
			"text_type": "plain",
			"operation": "query",
		},
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
