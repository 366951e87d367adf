// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/fuselogfs/fuselog/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString   = `^time="[0-9/:. ]{26}" severity=TRACE message="www\.traceExample\.com"`
	textDebugString   = `^time="[0-9/:. ]{26}" severity=DEBUG message="www\.debugExample\.com"`
	textInfoString    = `^time="[0-9/:. ]{26}" severity=INFO message="www\.infoExample\.com"`
	textWarningString = `^time="[0-9/:. ]{26}" severity=WARNING message="www\.warningExample\.com"`
	textErrorString   = `^time="[0-9/:. ]{26}" severity=ERROR message="www\.errorExample\.com"`

	jsonTraceString   = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"TRACE","message":"www\.traceExample\.com"}`
	jsonDebugString   = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"DEBUG","message":"www\.debugExample\.com"}`
	jsonInfoString    = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"INFO","message":"www\.infoExample\.com"}`
	jsonWarningString = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"WARNING","message":"www\.warningExample\.com"}`
	jsonErrorString   = `^{"timestamp":{"seconds":\d{10},"nanos":\d{0,9}},"severity":"ERROR","message":"www\.errorExample\.com"}`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, format string, level string) {
	var programLevel = new(slog.LevelVar)
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, ""))
	setLoggingLevel(level, programLevel)
}

func fetchLogOutputForSpecifiedSeverityLevel(format, level string) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, format, level)

	functions := []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	}

	var output []string
	for _, f := range functions {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func validateOutput(t *testing.T, expected []string, output []string) {
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, expected[i], output[i])
		} else {
			assert.Regexp(t, regexp.MustCompile(expected[i]), output[i])
		}
	}
}

func (t *LoggerTest) TestTextFormatLogsAtEachSeverity() {
	t.Run("OFF", func() {
		validateOutput(t.T(), []string{"", "", "", "", ""}, fetchLogOutputForSpecifiedSeverityLevel("text", "OFF"))
	})
	t.Run("ERROR", func() {
		validateOutput(t.T(), []string{"", "", "", "", textErrorString}, fetchLogOutputForSpecifiedSeverityLevel("text", "ERROR"))
	})
	t.Run("WARNING", func() {
		validateOutput(t.T(), []string{"", "", "", textWarningString, textErrorString}, fetchLogOutputForSpecifiedSeverityLevel("text", "WARNING"))
	})
	t.Run("INFO", func() {
		validateOutput(t.T(), []string{"", "", textInfoString, textWarningString, textErrorString}, fetchLogOutputForSpecifiedSeverityLevel("text", "INFO"))
	})
	t.Run("DEBUG", func() {
		validateOutput(t.T(), []string{"", textDebugString, textInfoString, textWarningString, textErrorString}, fetchLogOutputForSpecifiedSeverityLevel("text", "DEBUG"))
	})
	t.Run("TRACE", func() {
		validateOutput(t.T(), []string{textTraceString, textDebugString, textInfoString, textWarningString, textErrorString}, fetchLogOutputForSpecifiedSeverityLevel("text", "TRACE"))
	})
}

func (t *LoggerTest) TestJSONFormatLogsAtEachSeverity() {
	t.Run("OFF", func() {
		validateOutput(t.T(), []string{"", "", "", "", ""}, fetchLogOutputForSpecifiedSeverityLevel("json", "OFF"))
	})
	t.Run("ERROR", func() {
		validateOutput(t.T(), []string{"", "", "", "", jsonErrorString}, fetchLogOutputForSpecifiedSeverityLevel("json", "ERROR"))
	})
	t.Run("TRACE", func() {
		validateOutput(t.T(), []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString}, fetchLogOutputForSpecifiedSeverityLevel("json", "TRACE"))
	})
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		inputLevel    string
		expectedLevel slog.Level
	}{
		{"TRACE", LevelTrace},
		{"DEBUG", LevelDebug},
		{"INFO", LevelInfo},
		{"WARNING", LevelWarn},
		{"ERROR", LevelError},
		{"OFF", LevelOff},
	}

	for _, test := range testData {
		programLevel := new(slog.LevelVar)
		setLoggingLevel(test.inputLevel, programLevel)
		assert.Equal(t.T(), test.expectedLevel, programLevel.Level())
	}
}

func (t *LoggerTest) TestSetLogFormatDefaultsEmptyToJSON() {
	var buf bytes.Buffer
	defaultLoggerFactory.writer = &buf
	defaultLoggerFactory.programLevel.Set(LevelInfo)

	SetLogFormat("")

	assert.Equal(t.T(), "json", defaultLoggerFactory.format)
	Infof("www.infoExample.com")
	assert.Regexp(t.T(), regexp.MustCompile(jsonInfoString), buf.String())
}

func (t *LoggerTest) TestInitRoutesToFileWhenFilePathSet() {
	dir := t.T().TempDir()
	logPath := dir + "/fuselog.log"

	err := Init(cfg.LoggingConfig{
		Severity: cfg.DebugLogSeverity,
		Format:   "text",
		FilePath: cfg.ResolvedPath(logPath),
		LogRotate: cfg.LogRotateLoggingConfig{
			MaxFileSizeMb:   10,
			BackupFileCount: 2,
			Compress:        true,
		},
	})

	assert.NoError(t.T(), err)
	assert.NotNil(t.T(), defaultLoggerFactory.rotate)
	assert.Equal(t.T(), logPath, defaultLoggerFactory.rotate.Filename)
	assert.Equal(t.T(), LevelDebug, defaultProgramLevel.Level())
}
