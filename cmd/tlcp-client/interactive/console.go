// Package interactive provides the interactive command-line interface of
// tlcp-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tlcp-protocol/tlcp-go/pkg/client"
	"github.com/tlcp-protocol/tlcp-go/pkg/mpn"
	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Client is the part of client.Client the console drives.
type Client interface {
	Connect() error
	Disconnect() error
	Status() string
	SessionInfo() session.Info
	Subscribe(sub *subscription.Subscription) error
	Unsubscribe(sub *subscription.Subscription) error
	RegisterForMPN(dev *mpn.Device) error
	MPNDevice() *mpn.Device
	SubscribeMPN(sub *mpn.Subscription, coalescing bool) error
	UnsubscribeMPN(sub *mpn.Subscription) error
	UnsubscribeMPNSubscriptions(filter mpn.Filter) error
	MPNSubscriptions(filter mpn.Filter) []*mpn.Subscription
	ResetMPNBadge() error
}

var _ Client = (*client.Client)(nil)

var errUsage = errors.New("usage")

// Console handles interactive mode for tlcp-client.
type Console struct {
	client  Client
	printer *Printer
	rl      *readline.Instance
	out     io.Writer

	// subs are the subscriptions made from the console, numbered from 1.
	subs []*subscription.Subscription
}

// New creates a console on the terminal. Printer output is redirected
// through readline.
func New(c Client, printer *Printer) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tlcp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	con := newConsole(c, printer, rl.Stdout())
	con.rl = rl
	printer.SetOutput(rl.Stdout())
	return con, nil
}

func newConsole(c Client, printer *Printer, out io.Writer) *Console {
	return &Console{client: c, printer: printer, out: out}
}

// Stdout returns a writer that coordinates with the readline input.
// Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Track adds a subscription made outside the console to its list.
func (c *Console) Track(sub *subscription.Subscription) {
	c.subs = append(c.subs, sub)
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the console
// should exit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "connect":
		err = c.client.Connect()
	case "disconnect":
		err = c.client.Disconnect()
	case "status":
		c.cmdStatus()
	case "subscribe", "sub":
		err = c.cmdSubscribe(args)
	case "unsubscribe", "unsub":
		err = c.cmdUnsubscribe(args)
	case "list", "ls":
		c.cmdList()
	case "mpn":
		err = c.cmdMPN(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(c.out, "Usage: %v\n", strings.TrimPrefix(err.Error(), "usage: "))
	case err != nil:
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
TLCP Client Commands:
  Session:
    connect                                   - Open a session
    disconnect                                - Close the session
    status                                    - Show session status

  Subscriptions:
    subscribe <mode> <items> <fields> [adapter] - Subscribe (comma separated lists)
    unsubscribe <n>                           - Unsubscribe subscription n
    list                                      - List subscriptions

  Push notifications:
    mpn register <Apple|Google> <app-id> <token> - Register the device
    mpn subscribe <mode> <items> <fields> <format> [trigger] - Add a push subscription
    mpn unsubscribe <id|all|triggered>        - Remove push subscriptions
    mpn list [all|subscribed|triggered]       - List push subscriptions
    mpn badge                                 - Reset the application badge

  General:
    help                                      - Show this help
    quit                                      - Exit`)
}

func (c *Console) cmdStatus() {
	info := c.client.SessionInfo()
	fmt.Fprintf(c.out, "Status:      %s\n", c.client.Status())
	if info.SessionID == "" {
		return
	}
	fmt.Fprintf(c.out, "Session:     %s\n", info.SessionID)
	if info.ServerName != "" {
		fmt.Fprintf(c.out, "Server:      %s\n", info.ServerName)
	}
	if info.KeepAlive > 0 {
		fmt.Fprintf(c.out, "Keepalive:   %s\n", info.KeepAlive)
	}
	if info.Bandwidth != "" {
		fmt.Fprintf(c.out, "Bandwidth:   %s\n", info.Bandwidth)
	}
	if info.ClientIP != "" {
		fmt.Fprintf(c.out, "Client IP:   %s\n", info.ClientIP)
	}
}

// parseSubscription parses "<mode> <items> <fields>" with comma separated
// item and field lists.
func parseSubscription(args []string) (wire.Mode, []string, []string, error) {
	if len(args) < 3 {
		return "", nil, nil, fmt.Errorf("%w: <mode> <items> <fields>", errUsage)
	}
	mode := wire.Mode(strings.ToUpper(args[0]))
	if !mode.Valid() {
		return "", nil, nil, fmt.Errorf("unknown mode %q (MERGE, DISTINCT, RAW, COMMAND)", args[0])
	}
	return mode, splitList(args[1]), splitList(args[2]), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Console) cmdSubscribe(args []string) error {
	mode, items, fields, err := parseSubscription(args)
	if err != nil {
		return err
	}
	sub := subscription.New(mode, items, fields)
	if len(args) > 3 {
		if err := sub.SetDataAdapter(args[3]); err != nil {
			return err
		}
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	sub.AddListener(c.printer)
	if err := c.client.Subscribe(sub); err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	fmt.Fprintf(c.out, "Subscription %d: %s\n", len(c.subs), describe(sub))
	return nil
}

func (c *Console) cmdUnsubscribe(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: unsubscribe <n>", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(c.subs) || c.subs[n-1] == nil {
		return fmt.Errorf("no subscription %s", args[0])
	}
	if err := c.client.Unsubscribe(c.subs[n-1]); err != nil {
		return err
	}
	c.subs[n-1] = nil
	return nil
}

func (c *Console) cmdList() {
	count := 0
	for i, sub := range c.subs {
		if sub == nil {
			continue
		}
		count++
		state := "pending"
		if sub.IsSubscribed() {
			state = "subscribed"
		}
		fmt.Fprintf(c.out, "  %d. %s [%s] fields=%s\n", i+1, describe(sub), state, strings.Join(sub.Fields(), ","))
	}
	if count == 0 {
		fmt.Fprintln(c.out, "No subscriptions")
	}
}

func (c *Console) cmdMPN(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: mpn <register|subscribe|unsubscribe|list|badge>", errUsage)
	}
	sub, rest := strings.ToLower(args[0]), args[1:]
	switch sub {
	case "register":
		return c.cmdMPNRegister(rest)
	case "subscribe":
		return c.cmdMPNSubscribe(rest)
	case "unsubscribe":
		return c.cmdMPNUnsubscribe(rest)
	case "list":
		return c.cmdMPNList(rest)
	case "badge":
		return c.client.ResetMPNBadge()
	default:
		return fmt.Errorf("unknown mpn command: %s", sub)
	}
}

func parsePlatform(s string) (mpn.Platform, error) {
	switch strings.ToLower(s) {
	case "apple":
		return mpn.PlatformApple, nil
	case "google":
		return mpn.PlatformGoogle, nil
	default:
		return "", fmt.Errorf("unknown platform %q (Apple, Google)", s)
	}
}

func (c *Console) cmdMPNRegister(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: mpn register <Apple|Google> <app-id> <token>", errUsage)
	}
	platform, err := parsePlatform(args[0])
	if err != nil {
		return err
	}
	dev := mpn.NewDevice(platform, args[1], args[2])
	dev.AddListener(c.printer.DeviceListener())
	return c.client.RegisterForMPN(dev)
}

func (c *Console) cmdMPNSubscribe(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("%w: mpn subscribe <mode> <items> <fields> <format> [trigger]", errUsage)
	}
	mode, items, fields, err := parseSubscription(args[:3])
	if err != nil {
		return err
	}
	sub := mpn.NewSubscription(mode, items, fields)
	if err := sub.SetNotificationFormat(args[3]); err != nil {
		return err
	}
	if len(args) > 4 {
		if err := sub.SetTriggerExpression(strings.Join(args[4:], " ")); err != nil {
			return err
		}
	}
	sub.AddListener(c.printer.PushListener())
	return c.client.SubscribeMPN(sub, false)
}

func (c *Console) cmdMPNUnsubscribe(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: mpn unsubscribe <id|all|triggered>", errUsage)
	}
	if f, ok := mpn.ParseFilter(args[0]); ok {
		return c.client.UnsubscribeMPNSubscriptions(f)
	}
	for _, sub := range c.client.MPNSubscriptions(mpn.FilterAll) {
		if sub.SubscriptionID() == args[0] {
			return c.client.UnsubscribeMPN(sub)
		}
	}
	return fmt.Errorf("no push subscription %s", args[0])
}

func (c *Console) cmdMPNList(args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	filter, ok := mpn.ParseFilter(name)
	if !ok {
		return fmt.Errorf("unknown filter %q (all, subscribed, triggered)", name)
	}
	if dev := c.client.MPNDevice(); dev != nil {
		fmt.Fprintf(c.out, "Device: %s %s [%s]\n", dev.Platform(), dev.ApplicationID(), dev.Status())
	}
	subs := c.client.MPNSubscriptions(filter)
	if len(subs) == 0 {
		fmt.Fprintln(c.out, "No push subscriptions")
		return nil
	}
	for _, sub := range subs {
		id := sub.SubscriptionID()
		if id == "" {
			id = "(pending)"
		}
		fmt.Fprintf(c.out, "  %s %s %s [%s]\n", id, sub.Mode(), sub.Group(), sub.Status())
	}
	return nil
}
