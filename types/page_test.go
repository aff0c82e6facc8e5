/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestFromQueryDefaults(t *testing.T) {
	p := PageRequestFromQuery(url.Values{"page": {"x"}, "page_size": {"-3"}})
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, DefaultPageSize, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = PageRequestFromQuery(url.Values{"page": {"3"}, "page_size": {"500"}})
	assert.Equal(t, MaxPageSize, p.GetPageSize())
	assert.Equal(t, 2*MaxPageSize, p.GetOffset())
}

func TestPageRequestOffsetStaysInInt32(t *testing.T) {
	for _, q := range []url.Values{
		{"page": {"9223372036854775807"}, "page_size": {"100"}},
		{"page": {"2147483647"}, "page_size": {"1"}},
		{"page": {"999999999"}},
	} {
		p := PageRequestFromQuery(q)
		assert.LessOrEqual(t, p.GetOffset(), math.MaxInt32, q.Encode())
		assert.Greater(t, p.GetPage(), 1, q.Encode())
	}
}

func TestPaginationSetTotal(t *testing.T) {
	p := NewDefaultPagination[struct{}](1, 10)
	p.SetTotal(0)
	assert.Equal(t, 0, p.Pages)

	p.SetTotal(10)
	assert.Equal(t, 1, p.Pages)

	p.SetTotal(11)
	assert.Equal(t, 11, p.Total)
	assert.Equal(t, 2, p.Pages)
}
