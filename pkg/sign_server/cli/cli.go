package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	otlp_util "github.com/bluexlab/otlp-util-go"
	"github.com/gobuffalo/pop"
	"github.com/gobuffalo/pop/logging"
	"github.com/openc2pa/openc2pa/pkg/config"
	ocpkix "github.com/openc2pa/openc2pa/pkg/pkix"
	"github.com/openc2pa/openc2pa/pkg/sign_server/api"
	"github.com/openc2pa/openc2pa/pkg/sign_server/model"
	"github.com/openc2pa/openc2pa/pkg/util"
	"github.com/sirupsen/logrus"
)

const appName string = "sign-server"

type App struct{}

type PrivateKeyOption struct {
	KeyType   ocpkix.PrivateKeyType `enum:"RSA,ECDSA" short:"t" long:"type" help:"Key type" default:"ECDSA"`
	BitLength int                   `short:"b" long:"bit-length" help:"Key bit length" default:"2048"`
	CurveType ocpkix.ECDSACurveType `enum:"P-256,P-384,P-521" long:"curve" help:"Key curve type" default:"P-256"`
}

type ServerCmd struct {
	Config string `short:"c" long:"config" type:"existingfile" help:"Path to the configuration file"`
}

type MigrateCmd struct {
	Config     string `short:"c" long:"config" type:"existingfile" help:"Path to the configuration file"`
	Migrations string `short:"p" long:"path" type:"existingdir" help:"Path to the migration files" default:"migrations"`
}

type CSRGenerateCmd struct {
	PrivateKeyOption

	Country    []string `long:"country" help:"Country name" required:""`
	Org        []string `long:"org" help:"Organization name" required:""`
	Unit       []string `long:"unit" help:"Unit name" required:""`
	CommonName string   `long:"common-name" help:"Common name" required:""`

	KeyOutput string `long:"key-output" help:"Where to write the private key PEM" required:""`
	CSROutput string `long:"csr-output" help:"Where to write the certificate signing request PEM" required:""`
}

type CertSignCmd struct {
	Requester string `short:"r" long:"requester" help:"Requester name" required:""`
	CSR       []byte `type:"filecontent" help:"Certificate Signing Request" required:""`

	DeviceID   string `long:"device-id" help:"Device ID recorded with the issuance"`
	AppVersion string `long:"app-version" help:"App version recorded with the issuance"`
	Purpose    string `long:"purpose" help:"Purpose recorded with the issuance"`

	Output string `short:"o" long:"output" help:"Where to write the certificate chain PEM. Prints to stdout when omitted."`
}

type CertListCmd struct {
	Offset int `long:"offset" help:"Offset" default:"0"`
	Limit  int `long:"limit" help:"Limit" default:"50"`
}

type CAChainCmd struct {
	Output string `short:"o" long:"output" help:"Where to write the CA chain PEM. Prints to stdout when omitted."`
}

type C2PASignCmd struct {
	Asset    string `type:"existingfile" help:"Asset to sign" required:""`
	Manifest []byte `type:"filecontent" help:"Manifest definition JSON" required:""`
	Format   string `long:"format" help:"MIME type of the asset" required:""`
	Output   string `short:"o" long:"output" help:"Where to write the signed asset" required:""`
}

type SignServerCli struct {
	Server  ServerCmd  `cmd:"" help:"Run sign server."`
	Migrate MigrateCmd `cmd:"" help:"Migrate database."`

	Client struct {
		Server    string `short:"s" long:"server" help:"Server address" required:""`
		AuthToken string `long:"auth-token" help:"Bearer token for the C2PA endpoints"`

		CSR struct {
			Generate CSRGenerateCmd `cmd:""`
		} `cmd:""`

		Cert struct {
			Sign    CertSignCmd `cmd:""`
			List    CertListCmd `cmd:""`
			CAChain CAChainCmd  `cmd:""`
		} `cmd:""`

		C2PA struct {
			Sign C2PASignCmd `cmd:""`
		} `cmd:""`
	} `cmd:""`
}

func (*App) Run() {
	cli := SignServerCli{}
	ctx := kong.Parse(&cli)
	err := ctx.Run(&cli)
	if err != nil {
		logrus.Errorf("failed to run command: %v", err)
		os.Exit(1)
	}
}

func (cmd *ServerCmd) Run(cli *SignServerCli) error {
	ctx := context.Background()

	cfg := api.RestServerConfig{}
	if err := config.FromFile(cli.Server.Config, &cfg); err != nil {
		logrus.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	if endpoint := cfg.OTLPEndpoint; endpoint != "" {
		exporter, err := otlp_util.InitExporter(
			otlp_util.WithContext(ctx),
			otlp_util.WithEndPoint(endpoint),
			otlp_util.WithServiceName(appName),
			otlp_util.WithInSecure(),
			otlp_util.WithErrorHandler(func(err error) {
				logrus.Warnf("OTLP error: %v", err)
			}),
		)
		if err != nil {
			logrus.Errorf("failed to initialize OTLP exporter: %v", err)
			os.Exit(1)
		}
		defer func() { _ = exporter.Shutdown(ctx) }()
	}

	restServer, err := api.NewRestServerWithConfig(cfg)
	if err != nil {
		logrus.Errorf("failed to create rest server: %v", err)
		os.Exit(1)
	}

	logrus.Info("starting sign server.")
	go func() {
		if err := restServer.Run(); err != nil {
			logrus.Errorf("failed to start sign server: %v", err)
			os.Exit(1)
		}
	}()

	cmd.waitForInterrupt()
	restServer.Close(ctx)
	return nil
}

func (cmd *ServerCmd) waitForInterrupt() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server......")
}

func (cmd *MigrateCmd) Run(cli *SignServerCli) error {
	popLogger := func(lvl logging.Level, s string, args ...interface{}) {
		switch lvl {
		case logging.Debug:
			logrus.Debugf(s, args...)
		case logging.Info:
			logrus.Infof(s, args...)
		case logging.Warn:
			logrus.Warnf(s, args...)
		case logging.Error:
			logrus.Errorf(s, args...)
		case logging.SQL:
			// Do nothing because we don't want to log SQL queries.
		}
	}

	pop.SetLogger(popLogger)
	cfg := api.RestServerConfig{}
	if err := config.FromFile(cli.Migrate.Config, &cfg); err != nil {
		logrus.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	cd := pop.ConnectionDetails{
		Dialect:  "postgres",
		Database: cfg.Database.Database,
		Host:     cfg.Database.Host,
		Port:     fmt.Sprintf("%d", cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	}
	conn, err := pop.NewConnection(&cd)
	if err != nil {
		logrus.Errorf("failed to create connection: %v", err)
		os.Exit(1)
	}

	if err := conn.Dialect.CreateDB(); err != nil {
		logrus.Warnf("failed to create database: %v", err)
	}

	migrator, err := pop.NewFileMigrator(cli.Migrate.Migrations, conn)
	if err != nil {
		logrus.Errorf("failed to create migrator: %v", err)
		os.Exit(1)
	}
	// Remove SchemaPath to prevent migrator try to dump schema.
	migrator.SchemaPath = ""

	if err := migrator.Up(); err != nil {
		logrus.Errorf("failed to migrate: %v", err)
		os.Exit(1)
	}

	return nil
}

func (*CSRGenerateCmd) Run(cli *SignServerCli) error {
	cmd := &cli.Client.CSR.Generate

	key, err := ocpkix.CreatePrivateKey(ocpkix.PrivateKeyOption{
		KeyType:   cmd.KeyType,
		BitLength: cmd.BitLength,
		CurveType: cmd.CurveType,
	})
	if err != nil {
		logrus.Errorf("failed to generate private key: %v", err)
		os.Exit(1)
	}

	keyPEM, err := ocpkix.MarshalPrivateKey(key)
	if err != nil {
		logrus.Errorf("failed to marshal private key: %v", err)
		os.Exit(1)
	}

	csrPEM, err := ocpkix.CreateCertificateSigningRequest(key, cmd.Country, cmd.Org, cmd.Unit, cmd.CommonName)
	if err != nil {
		logrus.Errorf("failed to create certificate signing request: %v", err)
		os.Exit(1)
	}

	if err := os.WriteFile(cmd.KeyOutput, []byte(keyPEM), 0600); err != nil {
		logrus.Errorf("failed to write private key: %v", err)
		os.Exit(1)
	}
	if err := os.WriteFile(cmd.CSROutput, csrPEM, 0644); err != nil {
		logrus.Errorf("failed to write certificate signing request: %v", err)
		os.Exit(1)
	}

	logrus.Infof("Private key written to %s, CSR written to %s", cmd.KeyOutput, cmd.CSROutput)
	return nil
}

func (*CertSignCmd) Run(cli *SignServerCli) error {
	cmd := &cli.Client.Cert.Sign
	client := NewRestClient(cli.Client.Server, cmd.Requester, cli.Client.AuthToken)

	cert, err := client.SignCertificate(string(cmd.CSR), model.IssuanceMetadata{
		DeviceID:   cmd.DeviceID,
		AppVersion: cmd.AppVersion,
		Purpose:    cmd.Purpose,
	})
	if err != nil {
		logrus.Errorf("failed to sign certificate request: %v", err)
		os.Exit(1)
	}

	if cmd.Output != "" {
		if err := os.WriteFile(cmd.Output, []byte(cert.CertificateChain), 0644); err != nil {
			logrus.Errorf("failed to write certificate chain: %v", err)
			os.Exit(1)
		}
		logrus.Infof("Certificate issued with ID: %s, chain written to %s", cert.ID, cmd.Output)
		return nil
	}

	pretty := bytes.Buffer{}
	json.Indent(&pretty, []byte(util.StructToJSON(cert)), "", "  ")
	fmt.Println(pretty.String())
	return nil
}

func (*CertListCmd) Run(cli *SignServerCli) error {
	client := NewRestClient(cli.Client.Server, "", cli.Client.AuthToken)
	certs, err := client.ListCertificates(cli.Client.Cert.List.Offset, cli.Client.Cert.List.Limit)
	if err != nil {
		logrus.Errorf("failed to list certificates: %v", err)
		os.Exit(1)
	}

	pretty := bytes.Buffer{}
	json.Indent(&pretty, []byte(util.StructToJSON(certs)), "", "  ")
	fmt.Println(pretty.String())
	return nil
}

func (*CAChainCmd) Run(cli *SignServerCli) error {
	cmd := &cli.Client.Cert.CAChain
	client := NewRestClient(cli.Client.Server, "", cli.Client.AuthToken)

	chain, err := client.GetCAChain()
	if err != nil {
		logrus.Errorf("failed to get CA chain: %v", err)
		os.Exit(1)
	}

	if cmd.Output != "" {
		if err := os.WriteFile(cmd.Output, []byte(chain), 0644); err != nil {
			logrus.Errorf("failed to write CA chain: %v", err)
			os.Exit(1)
		}
		logrus.Infof("CA chain written to %s", cmd.Output)
		return nil
	}

	fmt.Println(chain)
	return nil
}

func (*C2PASignCmd) Run(cli *SignServerCli) error {
	cmd := &cli.Client.C2PA.Sign
	client := NewRestClient(cli.Client.Server, "", cli.Client.AuthToken)

	result, err := client.SignManifest(cmd.Asset, string(cmd.Manifest), cmd.Format)
	if err != nil {
		logrus.Errorf("failed to sign manifest: %v", err)
		os.Exit(1)
	}

	if err := os.WriteFile(cmd.Output, result, 0644); err != nil {
		logrus.Errorf("failed to write signed asset: %v", err)
		os.Exit(1)
	}

	logrus.Infof("Signed asset written to %s", cmd.Output)
	return nil
}
