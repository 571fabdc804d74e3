package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Platform describes the target platform surface: where a fresh session
// should navigate and which detection scripts get injected into its pages.
// Script sources carry an __OBSERVE_MS__ placeholder that is replaced with
// the configured login observation window at injection time.
type Platform struct {
	Name    string `yaml:"name"`
	HomeURL string `yaml:"home_url"`

	Scripts struct {
		LoginProbe      string `yaml:"login_probe"`
		ChallengeDetect string `yaml:"challenge_detect"`
		LoginFailDetect string `yaml:"login_fail_detect"`
	} `yaml:"scripts"`
}

// DefaultPlatform returns a minimal built-in profile used when no profile
// file is configured. The scripts only signal back through the standard
// bridge hooks; real deployments ship their own profile.
func DefaultPlatform() Platform {
	var p Platform
	p.Name = "xiaohongshu"
	p.HomeURL = "https://www.xiaohongshu.com"
	p.Scripts.LoginProbe = `(function(){var t=__OBSERVE_MS__;var failed=false;` +
		`window.__xuanceLoginFail=function(){failed=true};` +
		`setTimeout(function(){window.xuance.emit(failed?'init-login-failed':'init-login-success')},t);})();`
	p.Scripts.ChallengeDetect = `(function(){new MutationObserver(function(){` +
		`var el=document.querySelector('.captcha-slider');` +
		`window.xuance.emit(el?'slide-verification-popup-detected':'slide-verification-popup-hidden');` +
		`}).observe(document.body,{childList:true,subtree:true});})();`
	p.Scripts.LoginFailDetect = `(function(){new MutationObserver(function(){` +
		`if(document.querySelector('.login-container')){window.xuance.emit('login-status-change-to-failed')}` +
		`}).observe(document.body,{childList:true,subtree:true});})();`
	return p
}

// LoadPlatform reads a platform profile from a YAML file. An empty path
// returns the built-in default profile.
func LoadPlatform(path string) (Platform, error) {
	if path == "" {
		return DefaultPlatform(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Platform{}, fmt.Errorf("read platform profile: %w", err)
	}
	var p Platform
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Platform{}, fmt.Errorf("parse platform profile %s: %w", path, err)
	}
	if p.HomeURL == "" {
		return Platform{}, fmt.Errorf("platform profile %s: home_url is required", path)
	}
	return p, nil
}
