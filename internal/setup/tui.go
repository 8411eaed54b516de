// Package setup provides the interactive terminal configuration wizard.
package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/avgdown/dcabot/config"
	"github.com/avgdown/dcabot/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes the chosen
// configuration to config.gen.yaml.
func RunTUI() error {
	var (
		platform      string
		pair          string
		sharesStr     string
		minSizeStr    string
		maxSizeStr    string
		stepRatioStr  string
		minProfitStr  string
		orderDelayStr string
		confirm       bool
	)

	// defaults
	pair = "BTC_USDT"
	sharesStr = "10"
	minSizeStr = "0"
	maxSizeStr = "0"
	stepRatioStr = "0.02"
	minProfitStr = "0.001"
	orderDelayStr = "10s"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("DCABOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your averaging bot configured.\n"))

	// platform
	fmt.Println(stepStyle.Render("STEP 1: PLATFORM"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Exchange where the bot will trade").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
					huh.NewOption("Simulation", "simulate"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	// pair
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DCABOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: ASSET"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading pair in which the bot will place orders").
				Description("Must contain underscore (e.g. BTC_USDT)").
				Value(&pair).
				Validate(func(s string) error {
					_, err := domain.PairFromString(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// sizing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DCABOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: SIZING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Shares").
				Description("Portions the total portfolio value is divided into").
				Value(&sharesStr).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Minimal order size").
				Description("In base currency, 0 means no limit").
				Value(&minSizeStr).
				Validate(validateNonNegativeDecimal),
			huh.NewInput().
				Title("Maximum order size").
				Description("In base currency, 0 means no limit").
				Value(&maxSizeStr).
				Validate(validateNonNegativeDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	// thresholds
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DCABOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: THRESHOLDS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Position step ratio").
				Description("Fractional price move that triggers a rebalance (e.g. 0.02)").
				Value(&stepRatioStr).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Minimal profit").
				Description("Fractional profit required to reduce the position (e.g. 0.001)").
				Value(&minProfitStr).
				Validate(validateNonNegativeDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	// timing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DCABOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: TIMING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Delay time between orders").
				Description("Duration string (e.g. 10s, 1m, 5m)").
				Value(&orderDelayStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DCABOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nShares: %s\nStep ratio: %s\nMin profit: %s\nOrder delay: %s\n",
		platform, pair, sharesStr, stepRatioStr, minProfitStr, orderDelayStr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	orderDelay, _ := time.ParseDuration(orderDelayStr)
	shares, _ := decimal.NewFromString(sharesStr)

	configs := []config.ConfigTmp{{
		Platform:                platform,
		Pair:                    pair,
		Shares:                  shares.IntPart(),
		MinSizeStr:              minSizeStr,
		MaxSizeStr:              maxSizeStr,
		MinProfitPercentStr:     minProfitStr,
		AddPositionStepRatioStr: stepRatioStr,
		OrderDelayTime:          orderDelay,
	}}

	data, err := yaml.Marshal(configs)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\nConfiguration saved to %s", filename)))
	return nil
}

func validatePositiveInt(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return fmt.Errorf("must be a whole number")
	}
	if d.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateNonNegativeDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
