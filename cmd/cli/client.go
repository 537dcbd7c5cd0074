// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

const requestTimeout = 120 * time.Second

func apiBaseURL() string {
	if u := os.Getenv("CAPTION_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("CAPTION_API_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// apiError 解析服务端统一错误体
func apiError(method, path string, resp *resty.Response) error {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
		if body.Detail != "" {
			return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode(), body.Error, body.Detail)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), resp.String())
}

func encodeFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func predict(paths []string) ([]string, error) {
	data := make([]string, 0, len(paths))
	for _, p := range paths {
		s, err := encodeFile(p)
		if err != nil {
			return nil, err
		}
		data = append(data, s)
	}
	var out struct {
		Captions []string `json:"captions"`
	}
	resp, err := newClient().R().
		SetBody(map[string]interface{}{"data": data}).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("POST", "/predict", resp)
	}
	return out.Captions, nil
}

type candidate struct {
	GeneratedText string  `json:"generated_text"`
	Score         float64 `json:"score"`
}

func generate(path string, parameters map[string]interface{}) ([]candidate, error) {
	img, err := encodeFile(path)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"inputs": map[string]string{"image": img}}
	if len(parameters) > 0 {
		body["parameters"] = parameters
	}
	var out []candidate
	resp, err := newClient().R().
		SetBody(body).
		SetResult(&out).
		Post("/generate")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("POST", "/generate", resp)
	}
	return out, nil
}

func switchModel(name string) (string, error) {
	var out struct {
		Model string `json:"model"`
	}
	resp, err := newClient().R().
		SetQueryParam("model_name", name).
		SetResult(&out).
		Post("/switch")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apiError("POST", "/switch", resp)
	}
	return out.Model, nil
}

func currentModel() (string, error) {
	var out struct {
		Model string `json:"model"`
	}
	resp, err := newClient().R().SetResult(&out).Get("/model")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apiError("GET", "/model", resp)
	}
	return out.Model, nil
}

func fetchLog() (string, error) {
	var out struct {
		Log string `json:"log"`
	}
	resp, err := newClient().R().SetResult(&out).Get("/log")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apiError("GET", "/log", resp)
	}
	return out.Log, nil
}

func health() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).Get("/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET", "/health", resp)
	}
	return out, nil
}
