package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FeeSchedule defines how processor and platform fees are derived from a
// gross donation amount. Rates are in basis points, flat fees in minor units.
type FeeSchedule struct {
	ProcessorRateBps int64 `mapstructure:"processorRateBps"`
	ProcessorFlat    int64 `mapstructure:"processorFlat"`
	PlatformRateBps  int64 `mapstructure:"platformRateBps"`
}

// DefaultFeeSchedule matches the standard card schedule: 2.9% + $0.30
// processor, 5% platform.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		ProcessorRateBps: 290,
		ProcessorFlat:    30,
		PlatformRateBps:  500,
	}
}

// FeeScheduleHolder serves the current fee schedule and hot-reloads it when
// the backing fees.yml changes.
type FeeScheduleHolder struct {
	current atomic.Value // holds FeeSchedule
}

func NewFeeScheduleHolder(log *zap.Logger) (*FeeScheduleHolder, error) {
	log = log.Named("config.fees")
	v := viper.New()

	v.SetConfigName("fees")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/classfund/config")
	v.AddConfigPath("/etc/classfund")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLASSFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultFeeSchedule()
		v.SetDefault("fees.processorRateBps", defaults.ProcessorRateBps)
		v.SetDefault("fees.processorFlat", defaults.ProcessorFlat)
		v.SetDefault("fees.platformRateBps", defaults.PlatformRateBps)
	}

	var schedule FeeSchedule
	if err := v.UnmarshalKey("fees", &schedule); err != nil {
		return nil, err
	}
	if err := validateFeeSchedule(schedule); err != nil {
		return nil, err
	}

	holder := &FeeScheduleHolder{}
	holder.current.Store(schedule)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeeSchedule
		if err := v.UnmarshalKey("fees", &updated); err != nil {
			log.Error("fee schedule reload failed", zap.Error(err))
			return
		}
		if err := validateFeeSchedule(updated); err != nil {
			log.Warn("ignoring invalid fee schedule", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("fee schedule reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticFeeScheduleHolder returns a holder pinned to the given schedule
// with no config file watching. Intended for tests and one-shot tools.
func NewStaticFeeScheduleHolder(schedule FeeSchedule) *FeeScheduleHolder {
	holder := &FeeScheduleHolder{}
	holder.current.Store(schedule)
	return holder
}

func (h *FeeScheduleHolder) Get() FeeSchedule {
	return h.current.Load().(FeeSchedule)
}

func validateFeeSchedule(schedule FeeSchedule) error {
	if schedule.ProcessorRateBps < 0 || schedule.PlatformRateBps < 0 {
		return errors.New("fees.rates cannot be negative")
	}
	if schedule.ProcessorRateBps+schedule.PlatformRateBps >= 10_000 {
		return errors.New("fees.rates cannot consume the whole charge")
	}
	if schedule.ProcessorFlat < 0 {
		return errors.New("fees.processorFlat cannot be negative")
	}
	return nil
}
