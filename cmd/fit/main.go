// fit подгоняет линейную модель по выгруженному в json датасету признаков и
// печатает коэффициенты в yaml, пригодном для вклейки в конфиг.
package main

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"linear_bot/internal/models"
	signalsvc "linear_bot/internal/modules/signal/service"
)

func loadData(path string) (models.LinearData, error) {
	var data models.LinearData

	raw, err := os.ReadFile(path)
	if err != nil {
		return data, errors.Wrap(err, "read dataset")
	}
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return data, errors.Wrap(err, "unmarshal dataset")
	}

	if len(data.VOI) != len(data.OIR) || len(data.VOI) != len(data.MPB) {
		return data, errors.New("feature series have unequal lengths")
	}
	return data, nil
}

func run() error {
	viper.SetConfigName(".fit")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("dataset", "linear_data.json")
	if err := viper.ReadInConfig(); err != nil {
		// без файла работаем на дефолтах
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return errors.Wrap(err, "read config")
		}
	}

	data, err := loadData(viper.GetString("dataset"))
	if err != nil {
		return err
	}

	model := signalsvc.FitLinearModel(data)

	out, err := yaml.Marshal(map[string]models.LinearModel{"model": model})
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}

	fmt.Printf("samples: %d\n%s", len(data.VOI), out)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
