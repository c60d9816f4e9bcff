package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/mcci/pkg/client"
	"github.com/cuemby/mcci/pkg/clock"
	"github.com/cuemby/mcci/pkg/hub"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultAddr = "127.0.0.1:7420"

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "File a subscription",
	Long: `File a subscription for a client. Deliveries go to the client's attached
stream; see 'mcci watch'.

Examples:
  # every value of variable 2, from any host, for a minute
  mcci request --client 1 --any --var 2 --ttl 1m

  # the next three revisions of local variable 2
  mcci request --client 1 --var 2 --quantity 3`,
	RunE: runRequest,
}

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Publish a value of a local variable",
	Long: `Publish a value of a local variable and print the revision it became.

Examples:
  mcci produce --client 4 --var 2 --payload 21.5
  echo -n 21.5 | mcci produce --client 4 --var 2`,
	RunE: runProduce,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach as a client and print deliveries",
	Long: `Attach as a client and print every envelope delivered to it until
interrupted. With --var or --any, a subscription is filed once the stream is
open.

Examples:
  mcci watch --client 1 --any --ttl 10m
  mcci watch --client 6 --peer`,
	RunE: runWatch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show router statistics",
	RunE:  runStats,
}

func addRequestFlags(f *pflag.FlagSet) {
	f.Uint32("host", 0, "Host to subscribe to (0 is the node itself)")
	f.Bool("any", false, "Subscribe across every host")
	f.Uint32("var", 0, "Variable id (0 for every variable)")
	f.Uint32("rev", 0, "First revision wanted (0 for the latest)")
	f.Int32("quantity", 0, "Number of revisions wanted; negative counts backwards")
	f.Duration("ttl", time.Minute, "How long the subscription lives")
}

func init() {
	for _, cmd := range []*cobra.Command{requestCmd, produceCmd, watchCmd, statsCmd} {
		cmd.Flags().String("addr", defaultAddr, "Node API address")
	}

	requestCmd.Flags().Uint32("client", 0, "Client id")
	addRequestFlags(requestCmd.Flags())

	produceCmd.Flags().Uint32("client", 0, "Provider client id")
	produceCmd.Flags().Uint32("var", 0, "Variable id")
	produceCmd.Flags().String("payload", "", "Value to publish (read from stdin when unset)")
	produceCmd.Flags().Uint32("response-id", 1, "Id echoed in the acknowledgement (0 for none)")
	_ = produceCmd.MarkFlagRequired("var")

	watchCmd.Flags().Uint32("client", 0, "Client id")
	watchCmd.Flags().Bool("peer", false, "Attach as a peer and receive forwarded requests")
	addRequestFlags(watchCmd.Flags())

	statsCmd.Flags().Int64("client", -1, "Also show this client's quota")
}

func dial(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	c, err := client.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}
	return c, nil
}

func requestFromFlags(f *pflag.FlagSet) types.Request {
	host, _ := f.GetUint32("host")
	anyHost, _ := f.GetBool("any")
	variable, _ := f.GetUint32("var")
	rev, _ := f.GetUint32("rev")
	quantity, _ := f.GetInt32("quantity")
	ttl, _ := f.GetDuration("ttl")

	r := types.Request{
		Timeout:  client.Expiry(clock.Real(), ttl),
		Host:     types.NodeAddress(host),
		Variable: types.VariableID(variable),
		Revision: types.Revision(rev),
		Quantity: quantity,
	}
	if anyHost {
		r.Host = types.HostAny
	}
	return r
}

func printResponse(w io.Writer, resp types.Response) {
	if resp.Accepted {
		fmt.Fprintln(w, "✓ Request accepted")
	} else {
		fmt.Fprintln(w, "✗ Request rejected")
	}
	fmt.Fprintf(w, "  Remaining local:  %d\n", resp.RequestsRemainingLocal)
	fmt.Fprintf(w, "  Remaining remote: %d\n", resp.RequestsRemainingRemote)
}

func runRequest(cmd *cobra.Command, args []string) error {
	c, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	id, _ := cmd.Flags().GetUint32("client")
	r := requestFromFlags(cmd.Flags())
	resp, err := c.Request(cmd.Context(), types.ClientID(id), r)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	printResponse(cmd.OutOrStdout(), resp)
	return nil
}

func runProduce(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	id, _ := f.GetUint32("client")
	variable, _ := f.GetUint32("var")
	responseID, _ := f.GetUint32("response-id")

	var payload []byte
	if f.Changed("payload") {
		s, _ := f.GetString("payload")
		payload = []byte(s)
	} else {
		var err error
		if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
	}

	c, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ack, err := c.Produce(cmd.Context(), types.ClientID(id), types.Production{
		Variable:   types.VariableID(variable),
		ResponseID: responseID,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("produce failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Variable %d is now at revision %d\n", variable, ack.Revision)
	return nil
}

func printEnvelope(w io.Writer, env *hub.Envelope) {
	switch env.Kind {
	case hub.KindData:
		d := env.Data
		fmt.Fprintf(w, "data     host=%d var=%d rev=%d payload=%q\n", d.Host, d.Variable, d.Revision, d.Payload)
	case hub.KindAck:
		fmt.Fprintf(w, "ack      response=%d rev=%d\n", env.Ack.ResponseID, env.Ack.Revision)
	case hub.KindForward:
		fmt.Fprintf(w, "forward  client=%d %s\n", env.Client, env.Request)
	default:
		fmt.Fprintf(w, "%-8s\n", env.Kind)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	id, _ := f.GetUint32("client")
	peer, _ := f.GetBool("peer")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	stream, err := c.Attach(ctx, types.ClientID(id), peer)
	if err != nil {
		return fmt.Errorf("attach failed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Attached as client %d. Press Ctrl+C to stop.\n", id)

	if f.Changed("var") || f.Changed("any") || f.Changed("host") {
		resp, err := c.Request(ctx, types.ClientID(id), requestFromFlags(f))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printResponse(out, resp)
	}

	for {
		env, err := stream.Recv()
		switch {
		case err == nil:
			printEnvelope(out, env)
		case errors.Is(err, io.EOF), status.Code(err) == codes.Canceled:
			return nil
		default:
			return err
		}
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	var id *types.ClientID
	if n, _ := cmd.Flags().GetInt64("client"); n >= 0 {
		cid := types.ClientID(n)
		id = &cid
	}
	reply, err := c.Stats(ctx, id)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(reply)
}
