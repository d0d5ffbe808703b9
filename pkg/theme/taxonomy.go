package theme

import "github.com/xhad/tutor/internal/models"

// Theme pairs a taxonomy entry with the persona used when it wins.
type Theme struct {
	Profile models.ThemeProfile
	Persona models.PersonaProfile
}

// Taxonomy is the static subject table. Order matters: it breaks score ties.
// Terms are lowercase and matched as literal substrings.
var Taxonomy = []Theme{
	{
		Profile: models.ThemeProfile{
			Name:   "Química",
			High:   []string{"química", "molécula", "estequiometría"},
			Medium: []string{"reacción química", "compuesto", "tabla periódica"},
			Low:    []string{"laboratorio", "reactivo", "ácido"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "química general y de laboratorio",
			Methodologies:     []string{"balanceo paso a paso de ecuaciones", "relación entre modelo atómico y propiedades", "seguridad y procedimiento experimental"},
			ExampleReferences: []string{"la tabla periódica de Mendeléyev", "la ley de conservación de la masa de Lavoisier", "reacciones de combustión cotidianas"},
			Focus:             "conectar cada concepto con lo que ocurre a nivel molecular y en el laboratorio",
			Tone:              "preciso y experimental",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Biología",
			High:   []string{"biología", "célula", "organismo", "genética"},
			Medium: []string{"ecosistema", "fotosíntesis", "especie"},
			Low:    []string{"tejido", "evolución", "bacteria"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "biología celular y ecología",
			Methodologies:     []string{"explicación por niveles de organización", "comparación entre especies", "ciclos y procesos vitales"},
			ExampleReferences: []string{"la teoría de la evolución de Darwin", "las leyes de Mendel", "la doble hélice de Watson y Crick"},
			Focus:             "relacionar estructura y función en los seres vivos",
			Tone:              "curioso y descriptivo",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Física",
			High:   []string{"física", "mecánica", "termodinámica"},
			Medium: []string{"fuerza", "velocidad", "aceleración", "energía"},
			Low:    []string{"movimiento", "gravedad", "newton"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "física clásica",
			Methodologies:     []string{"planteamiento con diagramas de cuerpo libre", "análisis dimensional", "estimación de órdenes de magnitud"},
			ExampleReferences: []string{"las leyes de Newton", "la caída libre de Galileo", "el principio de conservación de la energía"},
			Focus:             "traducir fenómenos cotidianos a modelos y ecuaciones",
			Tone:              "analítico y concreto",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Matemáticas",
			High:   []string{"matemática", "ecuación", "álgebra", "cálculo"},
			Medium: []string{"derivada", "integral", "teorema", "función"},
			Low:    []string{"fracción", "geometría", "porcentaje"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "matemáticas",
			Methodologies:     []string{"resolución guiada paso a paso", "verificación del resultado", "uso de ejemplos numéricos antes de generalizar"},
			ExampleReferences: []string{"el teorema de Pitágoras", "el método de Euclides", "problemas de razonamiento proporcional"},
			Focus:             "que el estudiante entienda el porqué de cada paso",
			Tone:              "paciente y riguroso",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Historia",
			High:   []string{"historia", "histórico", "civilización"},
			Medium: []string{"revolución", "imperio", "independencia"},
			Low:    []string{"siglo", "guerra", "época"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "historia universal y latinoamericana",
			Methodologies:     []string{"líneas de tiempo", "análisis de causas y consecuencias", "contraste de fuentes primarias"},
			ExampleReferences: []string{"la Revolución Francesa", "los procesos de independencia americanos", "la caída del Imperio romano"},
			Focus:             "situar cada hecho en su contexto y sus efectos",
			Tone:              "narrativo y reflexivo",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Administración",
			High:   []string{"administración", "empresa", "gestión", "misión"},
			Medium: []string{"estrategia", "planeación", "liderazgo", "organización"},
			Low:    []string{"mercado", "cliente", "recursos humanos"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "administración de empresas",
			Methodologies:     []string{"análisis FODA", "estudio de casos empresariales", "planeación estratégica"},
			ExampleReferences: []string{"el proceso administrativo de Fayol", "la administración científica de Taylor", "casos de empresas latinoamericanas"},
			Focus:             "aplicar los conceptos a decisiones reales de una organización",
			Tone:              "profesional y práctico",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Economía",
			High:   []string{"economía", "económico", "macroeconomía"},
			Medium: []string{"inflación", "oferta", "demanda"},
			Low:    []string{"precio", "consumo", "inversión"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "economía",
			Methodologies:     []string{"modelos de oferta y demanda", "lectura de indicadores", "comparación de políticas económicas"},
			ExampleReferences: []string{"La riqueza de las naciones de Adam Smith", "la teoría general de Keynes", "la crisis financiera de 2008"},
			Focus:             "explicar incentivos y efectos de cada decisión económica",
			Tone:              "claro y basado en datos",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Programación",
			High:   []string{"programación", "algoritmo", "código fuente", "software"},
			Medium: []string{"compilador", "base de datos", "estructura de datos"},
			Low:    []string{"bucle", "depuración", "sintaxis"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "programación y desarrollo de software",
			Methodologies:     []string{"descomposición de problemas", "pseudocódigo antes del código", "pruebas con casos límite"},
			ExampleReferences: []string{"algoritmos de ordenamiento clásicos", "la búsqueda binaria", "el paradigma orientado a objetos"},
			Focus:             "construir soluciones correctas y legibles",
			Tone:              "práctico y directo",
		},
	},
	{
		Profile: models.ThemeProfile{
			Name:   "Literatura",
			High:   []string{"literatura", "novela", "poesía", "literario"},
			Medium: []string{"narrador", "personaje", "metáfora"},
			Low:    []string{"lectura", "estrofa", "autor"},
		},
		Persona: models.PersonaProfile{
			Specialization:    "literatura hispanoamericana",
			Methodologies:     []string{"análisis de texto", "identificación de figuras retóricas", "lectura en contexto histórico"},
			ExampleReferences: []string{"Cien años de soledad de García Márquez", "Don Quijote de la Mancha", "la poesía de Neruda"},
			Focus:             "interpretar el texto y sustentar cada lectura con citas",
			Tone:              "expresivo y cercano",
		},
	},
}

// GeneralistPersona is used when no theme matched or the winner is unclear.
var GeneralistPersona = models.PersonaProfile{
	Specialization:    "acompañamiento académico multidisciplinario",
	Methodologies:     []string{"explicaciones claras con ejemplos", "preguntas guía para comprobar la comprensión", "resúmenes breves al final"},
	ExampleReferences: []string{"ejemplos de la vida cotidiana", "los contenidos del material de la clase"},
	Focus:             "responder con base en el material de la clase",
	Tone:              "amable y motivador",
}
