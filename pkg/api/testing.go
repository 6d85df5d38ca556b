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
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// TestCall do a request to h and decode the common Result.
// ret is deemed to the Data of the Result, the call must succeed if ret is not nil
func TestCall(t *testing.T, h http.Handler, uri, method, data string, ret interface{}) (*require.Assertions, *Result, int) {
	gin.SetMode(gin.ReleaseMode)
	req := httptest.NewRequest(method, uri, strings.NewReader(data))
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	result := w.Result()
	defer result.Body.Close()
	r := require.New(t)
	body, err := ioutil.ReadAll(result.Body)
	r.NoError(err)
	resObj := &Result{Data: ret}
	if len(body) != 0 {
		r.NoError(json.Unmarshal(body, resObj), string(body))
	}
	if ret != nil {
		r.Equal(http.StatusOK, result.StatusCode, string(body))
		r.Equal(StatusSuccess, resObj.Status)
		r.Empty(resObj.Err)
		r.Empty(resObj.ErrorType)
	}
	return r, resObj, result.StatusCode
}
