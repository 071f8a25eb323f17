package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/elastic/go-elasticsearch/v7"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
)

type ElasticsearchConfig struct {
	Host  string
	Port  int
	Index string
}

// esEntry is the document shape: the normalised surface form is a keyword field so it can be
// matched exactly.
type esEntry struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

type esResponse struct {
	Responses []struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
		Hits struct {
			Hits []struct {
				Source esEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	} `json:"responses"`
}

func NewElasticsearchClient(conf ElasticsearchConfig) (Client, error) {
	c, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{fmt.Sprintf("http://%s:%d", conf.Host, conf.Port)},
	})
	if err != nil {
		return nil, err
	}
	if conf.Index == "" {
		return nil, errors.New("elasticsearch gazetteer index must be set")
	}
	return &esClient{
		Client: c,
		index:  conf.Index,
	}, nil
}

type esClient struct {
	*elasticsearch.Client
	index string
}

func (e *esClient) Ready() bool {
	res, err := e.Info()
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode == 200
}

func (e *esClient) NewGetPipeline(size int) GetPipeline {
	return &esPipeline{
		esClient:     e,
		buf:          bytes.NewBuffer(nil),
		currentQuery: make([]string, 0, size),
	}
}

type esPipeline struct {
	*esClient
	buf          *bytes.Buffer
	currentQuery []string
}

func (p *esPipeline) Get(key string) {
	p.buf.WriteString("{}\n")
	p.buf.WriteString(fmt.Sprintf(`{"size": 1, "query": {"term": {"name": "%s"}}}%s`, jsonEscape(key), "\n"))
	p.currentQuery = append(p.currentQuery, key)
}

func jsonEscape(i string) string {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	s := string(b)
	return s[1 : len(s)-1]
}

func (p *esPipeline) ExecGet(onResult func(string, *gazetteer.Lookup) error) error {
	res, err := p.Msearch(p.buf, p.Msearch.WithIndex(p.index))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.New(res.String())
	}

	b, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return err
	}
	var esresponse esResponse
	if err := json.Unmarshal(b, &esresponse); err != nil {
		return err
	}
	if len(esresponse.Responses) != len(p.currentQuery) {
		return fmt.Errorf("elasticsearch returned %d responses for %d queries", len(esresponse.Responses), len(p.currentQuery))
	}

	for i, response := range esresponse.Responses {
		if response.Error != nil {
			return fmt.Errorf("elasticsearch query for %q: %s: %s", p.currentQuery[i], response.Error.Type, response.Error.Reason)
		}
		var lookup *gazetteer.Lookup
		if len(response.Hits.Hits) > 0 {
			lookup = &gazetteer.Lookup{Labels: response.Hits.Hits[0].Source.Labels}
		}
		if err := onResult(p.currentQuery[i], lookup); err != nil {
			return err
		}
	}
	return nil
}

func (p *esPipeline) Size() int {
	return len(p.currentQuery)
}
