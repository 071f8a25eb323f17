package remote

import (
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
)

type RedisConfig struct {
	Host string
	Port int
}

func NewRedisClient(conf RedisConfig) Client {
	return &redisClient{
		Client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", conf.Host, conf.Port)}),
	}
}

type redisClient struct {
	*redis.Client
}

type redisGetPipeline struct {
	pipe redis.Pipeliner
	cmds map[string]*redis.StringCmd
}

func (r *redisClient) NewGetPipeline(size int) GetPipeline {
	return &redisGetPipeline{
		pipe: r.Pipeline(),
		cmds: make(map[string]*redis.StringCmd, size),
	}
}

func (r *redisClient) Ready() bool {
	return r.Ping().Err() == nil
}

func (r *redisGetPipeline) Get(key string) {
	r.cmds[key] = r.pipe.Get(key)
}

// ExecGet runs the queued GETs. Keys redis does not know are reported with a nil lookup.
func (r *redisGetPipeline) ExecGet(onResult func(string, *gazetteer.Lookup) error) error {
	defer r.pipe.Close()

	_, err := r.pipe.Exec()
	if err != nil && err != redis.Nil {
		return err
	}

	for key, cmd := range r.cmds {
		b, err := cmd.Bytes()
		if err == redis.Nil {
			if err = onResult(key, nil); err != nil {
				return err
			}
			continue
		} else if err != nil {
			return err
		}

		var lookup gazetteer.Lookup
		if err = json.Unmarshal(b, &lookup); err != nil {
			return fmt.Errorf("gazetteer value for %q: %w", key, err)
		}

		if err = onResult(key, &lookup); err != nil {
			return err
		}
	}

	return nil
}

func (r *redisGetPipeline) Size() int {
	return len(r.cmds)
}
