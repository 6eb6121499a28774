package upstream

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// The dbmsapi02 endpoints answer JSON by default; the legacy provider mode
// answers the same structure as XML. Both wrap the payload in
// header{resultCode,resultMsg} / body{items}. The items value is the messy
// part: it may be absent, null, a single bare object, or a list, and the
// route catalog additionally nests its list under a "route" key.

type respHeader struct {
	ResultCode string `json:"resultCode" xml:"resultCode"`
	ResultMsg  string `json:"resultMsg" xml:"resultMsg"`
}

// ok reports the provider success sentinel. The JSON provider uses "0000",
// the XML variant "00".
func (h respHeader) ok() bool {
	return h.ResultCode == "0000" || h.ResultCode == "00"
}

// flexString decodes a JSON string or bare number into a string. The API is
// not consistent about quoting numeric fields (seq, bsGap, xPos...).
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

func (s flexString) trimmed() string {
	return strings.TrimSpace(string(s))
}

func (s flexString) toInt() int {
	v := s.trimmed()
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}

func (s flexString) toFloat() float64 {
	f, err := strconv.ParseFloat(s.trimmed(), 64)
	if err != nil {
		return 0
	}
	return f
}

// itemList tolerates the three shapes body.items takes: absent/null (no
// records), a single bare object (one record), or a list.
type itemList[T any] []T

func (l *itemList[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = itemList[T]{one}
	return nil
}

// Wire record shapes. Every field is a flexString: the XML variant delivers
// all of them as character data anyway, and the JSON variant mixes quoted
// and unquoted scalars.

type routeItem struct {
	RouteNo   flexString `json:"routeNo" xml:"routeNo"`
	RouteID   flexString `json:"routeId" xml:"routeId"`
	RouteNote flexString `json:"routeNote" xml:"routeNote"`
}

type posItem struct {
	VhcNo   flexString `json:"vhcNo" xml:"vhcNo"`
	VhcNo2  flexString `json:"vhcNo2" xml:"vhcNo2"`
	BsNm    flexString `json:"bsNm" xml:"bsNm"`
	BsID    flexString `json:"bsId" xml:"bsId"`
	MoveDir flexString `json:"moveDir" xml:"moveDir"`
	BsGap   flexString `json:"bsGap" xml:"bsGap"`
	ArTime  flexString `json:"arTime" xml:"arTime"`
	XPos    flexString `json:"xPos" xml:"xPos"`
	YPos    flexString `json:"yPos" xml:"yPos"`
}

type stationItem struct {
	BsNm    flexString `json:"bsNm" xml:"bsNm"`
	BsID    flexString `json:"bsId" xml:"bsId"`
	MoveDir flexString `json:"moveDir" xml:"moveDir"`
	Seq     flexString `json:"seq" xml:"seq"`
	XPos    flexString `json:"xPos" xml:"xPos"`
	YPos    flexString `json:"yPos" xml:"yPos"`
}

type arrivalItem struct {
	RouteNo flexString `json:"routeNo" xml:"routeNo"`
	RouteID flexString `json:"routeId" xml:"routeId"`
	ArrTime flexString `json:"arrTime" xml:"arrTime"`
	BsGap   flexString `json:"bsGap" xml:"bsGap"`
}

// routeItems handles the catalog's extra nesting: items may be the list
// itself or an object holding it under "route".
type routeItems []routeItem

func (r *routeItems) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		*r = nil
		return nil
	}
	if data[0] == '{' {
		var nested struct {
			Route itemList[routeItem] `json:"route"`
		}
		if err := json.Unmarshal(data, &nested); err == nil && len(nested.Route) > 0 {
			*r = routeItems(nested.Route)
			return nil
		}
	}
	var flat itemList[routeItem]
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*r = routeItems(flat)
	return nil
}

// decodeItems parses one response body in the configured provider format
// and returns its normalized item sequence.
func decodeItems[T any](data []byte, format string) ([]T, respHeader, error) {
	if format == formatXML {
		var env struct {
			Header respHeader `xml:"header"`
			Items  []T        `xml:"body>items>item"`
		}
		if err := xml.Unmarshal(data, &env); err != nil {
			return nil, respHeader{}, fmt.Errorf("xml decode: %w", err)
		}
		return env.Items, env.Header, nil
	}
	var env struct {
		Header respHeader `json:"header"`
		Body   struct {
			Items itemList[T] `json:"items"`
		} `json:"body"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, respHeader{}, fmt.Errorf("json decode: %w", err)
	}
	return env.Body.Items, env.Header, nil
}

// decodeCatalog is decodeItems for the route catalog, whose items carry the
// extra "route" nesting in JSON and show up as either <route> or <item>
// elements in the XML variant.
func decodeCatalog(data []byte, format string) ([]routeItem, respHeader, error) {
	if format == formatXML {
		var env struct {
			Header respHeader  `xml:"header"`
			Routes []routeItem `xml:"body>items>route"`
			Items  []routeItem `xml:"body>items>item"`
		}
		if err := xml.Unmarshal(data, &env); err != nil {
			return nil, respHeader{}, fmt.Errorf("xml decode: %w", err)
		}
		if len(env.Routes) > 0 {
			return env.Routes, env.Header, nil
		}
		return env.Items, env.Header, nil
	}
	var env struct {
		Header respHeader `json:"header"`
		Body   struct {
			Items routeItems `json:"items"`
		} `json:"body"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, respHeader{}, fmt.Errorf("json decode: %w", err)
	}
	return env.Body.Items, env.Header, nil
}
