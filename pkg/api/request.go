/*
 * Tencent is pleased to support the open source community by making TKEStack available.
 *
 * Copyright (C) 2012-2019 Tencent. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use
 * this file except in compliance with the License. You may obtain a copy of the
 * License at
 *
 * https://opensource.org/licenses/Apache-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
 * WARRANTIES OF ANY KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations under the License.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Error is a failed Result returned by the server
type Error struct {
	StatusCode int
	Type       ErrorType
	Message    string
}

// Error implement error
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status code is %d", e.StatusCode)
	}
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Client do requests to a dbrouter admin server
type Client struct {
	base string
	hc   *http.Client
}

// NewClient return a Client of server address base, like "http://127.0.0.1:9090"
func NewClient(base string, timeout time.Duration) *Client {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

// Get do get request to path and save data to ret
func (c *Client) Get(ctx context.Context, path string, query url.Values, ret interface{}) error {
	u := c.base + path
	if len(query) != 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(err, "new request")
	}
	return c.do(req, ret)
}

// Post do post request to path with json encoded body and save data to ret
func (c *Client) Post(ctx context.Context, path string, body interface{}, ret interface{}) error {
	data := make([]byte, 0)
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "marshal body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewBuffer(data))
	if err != nil {
		return errors.Wrapf(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, ret)
}

func (c *Client) do(req *http.Request, ret interface{}) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()
	return dealResp(resp, ret)
}

func dealResp(resp *http.Response, ret interface{}) error {
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read data")
	}

	commonResp := Data(ret)
	if len(data) != 0 {
		if err := json.Unmarshal(data, commonResp); err != nil {
			if resp.StatusCode != 200 {
				return &Error{StatusCode: resp.StatusCode}
			}
			return errors.Wrapf(err, "unmarshal")
		}
	}

	if resp.StatusCode != 200 || commonResp.Status != StatusSuccess {
		return &Error{
			StatusCode: resp.StatusCode,
			Type:       commonResp.ErrorType,
			Message:    commonResp.Err,
		}
	}
	return nil
}
