package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/ecotrack-io/go-ecotrack/auth"
	"github.com/ecotrack-io/go-ecotrack/credentials"
	"github.com/ecotrack-io/go-ecotrack/internal/config"
	"github.com/ecotrack-io/go-ecotrack/sessions"
	"github.com/ecotrack-io/go-ecotrack/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()

	logger := newLogger(c)
	app, err := newApp(c, logger)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		displayAppname(c.GetAppName())
		usage()
		return nil
	}

	ctx := context.Background()
	command, rest := args[0], args[1:]
	switch command {
	case "login":
		return app.login(ctx, rest)
	case "logout":
		app.controller.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	case "status":
		return app.status(ctx)
	case "refresh":
		if !app.controller.RefreshToken(ctx) {
			return errors.New("token refresh failed, please log in again")
		}
		fmt.Println("Access token refreshed.")
		return nil
	case "whoami":
		return app.whoami(ctx)
	case "score":
		return app.score(ctx)
	case "recommendations":
		return app.recommendations(ctx)
	case "invoices":
		return app.invoices(ctx)
	case "help", "-h", "--help":
		displayAppname(c.GetAppName())
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Println(`Usage: ecotrack <command>

Commands:
  login [username]   authenticate and store tokens
  logout             invalidate tokens and clear stored credentials
  status             show the current authentication state
  refresh            renew the access token
  whoami             show the authenticated user's profile
  score              show the current carbon score
  recommendations    list sustainability recommendations
  invoices           list uploaded invoices`)
}

type app struct {
	api        *transport.Client
	controller *auth.Controller
	log        zerolog.Logger
}

// cliNavigator satisfies the transport's navigation hook: a CLI has no
// views, so a forced return to login becomes a printed notice.
type cliNavigator struct {
	path string
}

func (n *cliNavigator) CurrentPath() string { return n.path }

func (n *cliNavigator) Replace(path string) {
	n.path = path
	if path == transport.LoginPath {
		fmt.Fprintln(os.Stderr, "Session ended. Run 'ecotrack login' to sign in again.")
	}
}

func newApp(c config.Config, logger zerolog.Logger) (*app, error) {
	repo, err := credentials.NewFileRepo(c.GetCredentialsFile())
	if err != nil {
		return nil, err
	}

	nav := &cliNavigator{}
	api, err := transport.NewClient(c.GetAPIBaseURL(), repo,
		transport.WithHTTPClient(&http.Client{Timeout: c.GetRequestTimeout()}),
		transport.WithRefreshTimeout(c.GetRefreshTimeout()),
		transport.WithNavigator(nav),
		transport.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	guard, err := sessions.NewGuard(repo)
	if err != nil {
		return nil, err
	}

	controller, err := auth.NewController(auth.Deps{
		API:       api,
		Creds:     repo,
		Guard:     guard,
		Navigator: nav,
	}, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{api: api, controller: controller, log: logger}, nil
}

func (a *app) login(ctx context.Context, args []string) error {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return errors.New("username is required")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	result := a.controller.Login(ctx, transport.Credentials{
		Username: username,
		Password: string(password),
	})
	if !result.Success {
		return errors.New(result.Error)
	}

	fmt.Printf("Logged in as %s.\n", a.controller.User().Username)
	return nil
}

func (a *app) status(ctx context.Context) error {
	a.controller.CheckAuthStatus(ctx)

	info := a.controller.SessionInfo()
	if !a.controller.IsAuthenticated() {
		fmt.Println("Not logged in.")
		return nil
	}

	user := a.controller.User()
	fmt.Printf("Logged in as %s\n", user.Username)
	fmt.Printf("Session: %s (owner %s)\n", info.SessionID, info.UserID)
	if expiry, ok := a.api.AccessTokenExpiry(); ok {
		fmt.Printf("Access token expires: %s\n", expiry.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	profile, err := a.api.Profile(ctx)
	if err != nil {
		return err
	}
	return printJSON(profile)
}

func (a *app) score(ctx context.Context) error {
	score, err := a.api.CarbonScore(ctx, nil)
	if err != nil {
		return err
	}
	return printJSON(score)
}

func (a *app) recommendations(ctx context.Context) error {
	recs, err := a.api.Recommendations(ctx, nil)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No recommendations.")
		return nil
	}
	for _, rec := range recs {
		marker := " "
		if rec.Implemented {
			marker = "x"
		}
		fmt.Printf("[%s] %-10s %s (%s)\n", marker, rec.Priority, rec.Title, rec.Category)
	}
	return nil
}

func (a *app) invoices(ctx context.Context) error {
	invoices, err := a.api.Invoices(ctx, nil)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		fmt.Println("No invoices.")
		return nil
	}
	return printJSON(invoices)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newLogger(c config.EnvConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
