package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/task"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
	"gopkg.in/yaml.v2"
)

var (
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 监听地址，覆盖配置文件中的listen
	listen = flag.String("listen", "", "HTTP listening address (overrides config listen), e.g. :51102")
	// 启动行驶模拟器，沿simulate.waypoints规划的路线上报模拟位置
	simulate = flag.Bool("simulate", false, "drive a simulated vehicle along simulate.waypoints")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "greenwave")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var c config.Config
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		log.Panicf("config file load err: %v", err)
	}
	if *listen != "" {
		c.Listen = *listen
	}
	log.Debugf("%+v", c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := task.NewContext(c, clock.New())
	if err != nil {
		log.Panicf("config invalid: %v", err)
	}
	if err := t.Init(ctx); err != nil {
		t.Close()
		log.Panicf("init err: %v", err)
	}
	if *simulate {
		go func() {
			if err := task.NewSimulator(t).Run(ctx); err != nil {
				log.Errorf("simulator stopped: %v", err)
			}
		}()
	}
	if err := t.Serve(ctx); err != nil {
		log.Panicf("serve err: %v", err)
	}
}
