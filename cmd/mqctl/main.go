// mqctl is the command line client for the message hub.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chris-fellows/cf-message-queue-sub000/pkg/connector"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

var (
	hubAddress string
	secretKey  string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "mqctl",
		Short:         "Command line client for the message hub",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&hubAddress, "hub", "127.0.0.1:10010", "Hub address")
	root.PersistentFlags().StringVar(&secretKey, "key", os.Getenv("MQ_SECRET_KEY"), "Client secret key (or MQ_SECRET_KEY)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		addClientCmd(),
		configureCmd(),
		createQueueCmd(),
		queueActionCmd(),
		hubsCmd(),
		clientsCmd(),
		queuesCmd(),
		enqueueCmd(),
		leaseCmd(),
		ackCmd(),
		messagesCmd(),
		subscribeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func connect() *connector.Connector {
	return connector.New(hubAddress, secretKey, logger.Nop())
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func addClientCmd() *cobra.Command {
	var clientKey string
	cmd := &cobra.Command{
		Use:   "add-client <name>",
		Short: "Register a new client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			id, err := connect().AddClient(ctx, args[0], clientKey)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientKey, "client-key", "", "Secret key for the new client")
	_ = cmd.MarkFlagRequired("client-key")
	return cmd
}

func configureCmd() *cobra.Command {
	var queueID string
	var roles []string
	cmd := &cobra.Command{
		Use:   "configure <client-id>",
		Short: "Replace a client's roles on the hub or one queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			trimmed := make([]string, 0, len(roles))
			for _, r := range roles {
				trimmed = append(trimmed, strings.TrimSpace(r))
			}
			return connect().ConfigurePermissions(ctx, args[0], queueID, trimmed)
		},
	}
	cmd.Flags().StringVar(&queueID, "queue", "", "Queue id (empty targets the hub scope)")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "Roles to grant (empty removes the grant)")
	return cmd
}

func createQueueCmd() *cobra.Command {
	var maxLeases, maxSize int
	cmd := &cobra.Command{
		Use:   "create-queue <name>",
		Short: "Create a message queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			id, address, err := connect().CreateQueue(ctx, args[0], maxLeases, maxSize)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"id": id, "address": address})
		},
	}
	cmd.Flags().IntVar(&maxLeases, "max-leases", 0, "Max concurrent leases (0 = unlimited)")
	cmd.Flags().IntVar(&maxSize, "max-size", 0, "Max queue size (0 = unlimited)")
	return cmd
}

func queueActionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-action <queue-id> <CLEAR|DELETE>",
		Short: "Run an action against a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()
			return connect().ExecuteQueueAction(ctx, args[0], strings.ToUpper(args[1]))
		},
	}
}

func hubsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hubs",
		Short: "List hubs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			hubs, err := connect().Hubs(ctx)
			if err != nil {
				return err
			}
			return printJSON(hubs)
		},
	}
}

func clientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List registered clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			clients, err := connect().Clients(ctx)
			if err != nil {
				return err
			}
			return printJSON(clients)
		},
	}
}

func queuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			queues, err := connect().Queues(ctx)
			if err != nil {
				return err
			}
			return printJSON(queues)
		},
	}
}

func enqueueCmd() *cobra.Command {
	var typeID, name, contentType, content, contentFile string
	var priority int
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "enqueue <queue-id>",
		Short: "Add a message to a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			body := []byte(content)
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				body = data
			}

			id, err := connect().Enqueue(ctx, connector.EnqueueParams{
				QueueID:     args[0],
				TypeID:      typeID,
				Name:        name,
				Priority:    priority,
				Expiry:      expiry,
				ContentType: contentType,
				Content:     body,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&typeID, "type", "", "Message type id")
	cmd.Flags().StringVar(&name, "name", "", "Message name")
	cmd.Flags().IntVar(&priority, "priority", 50, "Priority, 0 (highest) to 100 (lowest)")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "Time until the message expires (0 = never)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Payload content type")
	cmd.Flags().StringVar(&content, "content", "", "Inline payload")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "Read the payload from a file")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func leaseCmd() *cobra.Command {
	var maxWait, leaseTTL time.Duration
	cmd := &cobra.Command{
		Use:   "lease <queue-id>",
		Short: "Lease the next message from a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), maxWait+timeout)
			defer cancel()

			msg, err := connect().LeaseNext(ctx, args[0], maxWait, leaseTTL)
			if err != nil {
				return err
			}
			if msg == nil {
				fmt.Println("no message available")
				return nil
			}
			return printJSON(msg)
		},
	}
	cmd.Flags().DurationVar(&maxWait, "wait", 0, "How long to wait for a message")
	cmd.Flags().DurationVar(&leaseTTL, "lease-ttl", 30*time.Second, "How long the lease is held before it times out")
	return cmd
}

func ackCmd() *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "ack <queue-id> <message-id>",
		Short: "Settle a leased message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()
			return connect().Acknowledge(ctx, args[0], args[1], !failed)
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "Return the message to the queue instead of deleting it")
	return cmd
}

func messagesCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "messages <queue-id>",
		Short: "Page through a queue's messages without leasing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			defer cancel()

			msgs, err := connect().Messages(ctx, args[0], page, pageSize)
			if err != nil {
				return err
			}
			return printJSON(msgs)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page index")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "Page size")
	return cmd
}

func subscribeCmd() *cobra.Command {
	var sizeFrequency time.Duration
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "subscribe <queue-id>",
		Short: "Stream queue notifications until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx()
			sub, err := connect().Subscribe(ctx, args[0], sizeFrequency, listenAddr)
			cancel()
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stderr, "subscribed", sub.ID())

			// Close on interrupt; closing ends the notification channel.
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigint
				ctx, cancel := callCtx()
				defer cancel()
				_ = sub.Close(ctx)
			}()

			for n := range sub.Notifications() {
				line, err := json.Marshal(n)
				if err != nil {
					return err
				}
				fmt.Println(string(line))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&sizeFrequency, "size-frequency", 0, "Periodic queue size notification interval (0 disables)")
	cmd.Flags().StringVar(&listenAddr, "listen", ":0", "Local address notifications are pushed to")
	return cmd
}
