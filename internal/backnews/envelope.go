package backnews

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Success    *bool           `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Errors     json.RawMessage `json:"errors"`
}

func parseEnvelope(body []byte) (envelope, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	if env.Success == nil && env.Data == nil {
		return envelope{}, false
	}
	return env, true
}

// decodeData unwraps {success, data} and decodes data into dst. Endpoints that
// answer with a bare object are decoded as they are.
func decodeData(body []byte, dst any) error {
	if dst == nil {
		return nil
	}
	env, ok := parseEnvelope(body)
	if !ok {
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return newDecodeError(err)
		}
		return nil
	}
	if env.Success != nil && !*env.Success {
		apiErr := &APIError{Kind: KindValidation, Message: env.Message, Fields: parseFieldErrors(env.Errors)}
		if apiErr.Message == "" {
			apiErr.Message = genericMessages[KindValidation]
		}
		return apiErr
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return newDecodeError(err)
	}
	return nil
}

// decodePage normalises both list shapes into a Page:
//
//	{success, data: [...], pagination}
//	{success, data: {<key>: [...], pagination}}
func decodePage[T any](body []byte, key string) (Page[T], error) {
	var page Page[T]

	env, ok := parseEnvelope(body)
	if !ok {
		return page, newDecodeError(fmt.Errorf("list response without envelope"))
	}
	if env.Success != nil && !*env.Success {
		return page, &APIError{Kind: KindValidation, Message: firstNonEmpty(env.Message, genericMessages[KindValidation])}
	}

	data := bytes.TrimSpace(env.Data)
	pagination := env.Pagination

	switch {
	case len(data) == 0 || string(data) == "null":
	case data[0] == '[':
		if err := json.Unmarshal(data, &page.Items); err != nil {
			return page, newDecodeError(err)
		}
	case data[0] == '{':
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err != nil {
			return page, newDecodeError(err)
		}
		if items, exists := nested[key]; exists && string(items) != "null" {
			if err := json.Unmarshal(items, &page.Items); err != nil {
				return page, newDecodeError(err)
			}
		}
		if raw, exists := nested["pagination"]; exists && string(raw) != "null" {
			var inner Pagination
			if err := json.Unmarshal(raw, &inner); err != nil {
				return page, newDecodeError(err)
			}
			pagination = &inner
		}
	default:
		return page, newDecodeError(fmt.Errorf("unexpected list data %q", data[:1]))
	}

	if page.Items == nil {
		page.Items = []T{}
	}
	if pagination != nil {
		page.Pagination = *pagination
	} else {
		n := len(page.Items)
		page.Pagination = Pagination{Page: 1, Limit: n, Total: n, Pages: 1}
	}
	return page, nil
}
