package lib

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

type config struct {
	BaseConfig `mapstructure:",squash"`
	Window     int `mapstructure:"window"`
	Corpus     struct {
		Train string
	}
	SecondPass        bool `mapstructure:"second_pass"`
	KeyNotInConfigMap string
}

func TestInitializeConfigFromPath(t *testing.T) {
	resetFlags()
	filename := writeConfigFile(t, map[string]interface{}{
		"window": 5,
		"corpus": map[string]interface{}{
			"train": "train.jsonl",
		},
	})

	var parsed config
	err := InitializeConfig(filename, map[string]interface{}{"log_level": "info"}, &parsed)

	assert.NoError(t, err)
	assert.Equal(t, 5, parsed.Window)
	assert.Equal(t, "train.jsonl", parsed.Corpus.Train)
	assert.Equal(t, "info", parsed.LogLevel)
}

func TestInitializeConfigDefaultsAndEnvOverride(t *testing.T) {
	resetFlags()
	filename := writeConfigFile(t, map[string]interface{}{
		"corpus": map[string]interface{}{
			"train": "train.jsonl",
		},
	})

	os.Setenv("CORPUS_TRAIN", "override.jsonl")
	os.Setenv("KEYNOTINCONFIGMAP", "ignored")
	defer os.Unsetenv("CORPUS_TRAIN")
	defer os.Unsetenv("KEYNOTINCONFIGMAP")

	var parsed config
	err := InitializeConfig(filename, map[string]interface{}{"window": 7}, &parsed)

	assert.NoError(t, err)
	assert.Equal(t, 7, parsed.Window)
	assert.Equal(t, "override.jsonl", parsed.Corpus.Train)

	// viper only reads env vars for keys it already knows about
	assert.Equal(t, "", parsed.KeyNotInConfigMap)
}

func TestInitializeConfigMissingFile(t *testing.T) {
	resetFlags()

	var parsed config
	err := InitializeConfig("./does-not-exist.yml", map[string]interface{}{"window": 3}, &parsed)

	assert.NoError(t, err)
	assert.Equal(t, 3, parsed.Window)
}

func TestInitializeConfigWithFlags(t *testing.T) {
	resetFlags()
	filename := writeConfigFile(t, map[string]interface{}{"window": 5})
	os.Args = []string{"test", "--config", filename, "--second_pass"}

	var parsed config
	err := InitializeConfig("./unused.yml", map[string]interface{}{}, &parsed, func(fs *pflag.FlagSet) {
		fs.Bool("second_pass", false, "second pass training")
	})

	assert.NoError(t, err)
	assert.Equal(t, 5, parsed.Window)
	assert.True(t, parsed.SecondPass)
}

func TestInitializeConfigBadLogLevel(t *testing.T) {
	resetFlags()

	var parsed config
	err := InitializeConfig("", map[string]interface{}{"log_level": "loud"}, &parsed)
	assert.Error(t, err)
}

func TestInitializeConfigNilTarget(t *testing.T) {
	resetFlags()
	assert.Error(t, InitializeConfig("", nil, nil))
}

func writeConfigFile(t *testing.T, configMap map[string]interface{}) string {
	file, err := ioutil.TempFile(t.TempDir(), "*.yml")
	if err != nil {
		t.Fatal(err)
	}
	data, err := yaml.Marshal(&configMap)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	return file.Name()
}

func resetFlags() {
	os.Args = []string{"test"}
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
}
