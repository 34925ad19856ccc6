// Serve the training results in a directory as web pages.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jnb666/mnistrun/cli"
	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/web"
)

var cmd = &cobra.Command{
	Use:   "web [--listen :8080] <results_dir>",
	Short: "Web viewer for training results",
	Args:  cli.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := web.NewServer(args[0], web.Options{
			User:     viper.GetString("web.user"),
			Password: viper.GetString("web.password"),
		})
		if err != nil {
			return err
		}
		return serve(viper.GetString("listen"), s)
	},
}

func init() {
	cli.Setup(cmd)
	cmd.Flags().String("listen", ":8080", "address to listen on")
	cli.Bind(cmd, "listen")
}

func serve(addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	log.Printf("serving web page at http://localhost%s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func main() {
	cli.Execute(cmd)
}
