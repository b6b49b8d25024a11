package languages

// DefaultLanguages is the reference table. Order matters: it is the order of
// the "available languages" listing.
func DefaultLanguages() []Language {
	return []Language{
		{
			Code:      "rs",
			Name:      "Rust",
			Extension: "rs",
			CompileSteps: []Command{
				{Program: "rustc", Args: []string{"--edition=2018", "-O", "-o", "main", "main.rs"}},
			},
			Run: Command{Program: "./main"},
		},
		{
			Code:      "cpp",
			Name:      "C++",
			Extension: "cc",
			CompileSteps: []Command{
				{Program: "g++", Args: []string{"-std=c++20", "-O3", "-o", "main", "main.cc"}},
			},
			Run: Command{Program: "./main"},
		},
		{
			Code:      "hs",
			Name:      "Haskell",
			Extension: "hs",
			CompileSteps: []Command{
				{Program: "ghc", Args: []string{"-fllvm", "-dynamic", "-o", "main", "main.hs"}},
			},
			Run: Command{Program: "./main"},
		},
		{
			Code:      "c",
			Name:      "C",
			Extension: "c",
			CompileSteps: []Command{
				{Program: "gcc", Args: []string{"-std=c17", "-O3", "-o", "main", "main.c"}},
			},
			Run: Command{Program: "./main"},
		},
		{
			Code:      "py",
			Name:      "Python",
			Extension: "py",
			CompileSteps: []Command{
				{Program: "python3", Args: []string{"-m", "py_compile", "main.py"}},
			},
			Run: Command{Program: "python3", Args: []string{"main.py"}},
		},
		{
			Code:      "js",
			Name:      "JavaScript",
			Extension: "js",
			Run:       Command{Program: "node", Args: []string{"--max-old-space-size=2000", "main.js"}},
		},
		{
			Code:      "sh",
			Name:      "Bash",
			Extension: "sh",
			CompileSteps: []Command{
				{Program: "chmod", Args: []string{"+x", "main.sh"}},
			},
			Run: Command{Program: "bash", Args: []string{"main.sh"}},
		},
		{
			Code:      "go",
			Name:      "Go",
			Extension: "go",
			CompileSteps: []Command{
				{Program: "go", Args: []string{"build", "-o", "main", "main.go"}},
			},
			Run: Command{Program: "./main"},
		},
		{
			Code:      "java",
			Name:      "Java",
			Extension: "java",
			// javac requires the file name to match the public class.
			CompileSteps: []Command{
				{Program: "mv", Args: []string{"main.java", "Main.java"}},
				{Program: "javac", Args: []string{"Main.java"}},
			},
			Run: Command{Program: "java", Args: []string{
				"-XX:MaxHeapSize=512m",
				"-XX:InitialHeapSize=512m",
				"-XX:CompressedClassSpaceSize=64m",
				"-XX:MaxMetaspaceSize=128m",
				"Main",
			}},
		},
	}
}
