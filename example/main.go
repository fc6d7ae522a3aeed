package main

import (
	"fmt"

	"github.com/bridgelua/bridgelua"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

func init() {
	lua.LuaLDir = "script"
}

func main() {
	logger, _ := zap.NewDevelopment()
	config, err := bridgelua.LoadConfig("config.toml")
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	registry := bridgelua.NewRegistry(logger)
	defer registry.Shutdown()
	registry.Define(bridgelua.Class{
		Name:  "player",
		Entry: config.GetScriptEntry(),
		Options: []bridgelua.Option{
			bridgelua.WithLibJson(),
			bridgelua.WithModuleEvent(logger),
			bridgelua.WithModuleLogger(logger),
		},
	})

	state := registry.State("player")
	vm := bridgelua.NewViewModel(state, append(
		config.ViewModel.Options(),
		bridgelua.WithViewModelFields(map[string]bridgelua.Value{
			"name":   bridgelua.ValueOf("guest"),
			"health": bridgelua.ValueOf(100),
		}),
	)...)
	vm.Initialize()
	vm.OnFieldValueChanged(func(field string) {
		logger.Info("field changed",
			zap.String("field", field),
			zap.String("value", vm.Field(field).String()),
		)
	})

	vm.SetProperty("health", bridgelua.ValueOf(75))
	vm.SetProperty("name", bridgelua.ValueOf("hero"))
	fmt.Println("display:", vm.Property("display").String())

	widget := bridgelua.NewWidget(state, config.Widget.Options()...)
	widget.OnActivated(func() {
		logger.Info("widget shown")
	})
	widget.Construct()
	widget.Activate()
	widget.Deactivate()
	widget.Destruct()
}
